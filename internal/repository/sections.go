package repository

import (
	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type markerBound[T any] interface {
	*T
	SetMarkerID(id int64)
}

// section binds one section table to its field on MarkerRecord.
type section struct {
	table  string
	store  func(db *gorm.DB, record *model.MarkerRecord) error
	load   func(db *gorm.DB, record *model.MarkerRecord) error
	remove func(db *gorm.DB, markerIDs []int64) error
}

// markerSections lists every section table of a marker.
var markerSections = []section{
	singleSection[model.Address]("marker_address", func(r *model.MarkerRecord) **model.Address { return &r.Address }),
	singleSection[model.Amenities]("marker_amenities", func(r *model.MarkerRecord) **model.Amenities { return &r.Amenities }),
	singleSection[model.Business]("marker_business", func(r *model.MarkerRecord) **model.Business { return &r.Business }),
	multiSection[model.BusinessPhoto]("marker_business_photos", func(r *model.MarkerRecord) *[]model.BusinessPhoto { return &r.BusinessPhotos }),
	singleSection[model.BusinessProgram]("marker_business_program", func(r *model.MarkerRecord) **model.BusinessProgram { return &r.BusinessProgram }),
	multiSection[model.Competitor]("marker_competitors", func(r *model.MarkerRecord) *[]model.Competitor { return &r.Competitors }),
	singleSection[model.Contact]("marker_contact", func(r *model.MarkerRecord) **model.Contact { return &r.Contact }),
	singleSection[model.Dockage]("marker_dockage", func(r *model.MarkerRecord) **model.Dockage { return &r.Dockage }),
	singleSection[model.Fuel]("marker_fuel", func(r *model.MarkerRecord) **model.Fuel { return &r.Fuel }),
	singleSection[model.Moorings]("marker_moorings", func(r *model.MarkerRecord) **model.Moorings { return &r.Moorings }),
	singleSection[model.Navigation]("marker_navigation", func(r *model.MarkerRecord) **model.Navigation { return &r.Navigation }),
	singleSection[model.Retail]("marker_retail", func(r *model.MarkerRecord) **model.Retail { return &r.Retail }),
	singleSection[model.Services]("marker_services", func(r *model.MarkerRecord) **model.Services { return &r.Services }),
	singleSection[model.MarkerMeta]("marker_meta", func(r *model.MarkerRecord) **model.MarkerMeta { return &r.Meta }),
}

func singleSection[T any, PT markerBound[T]](table string, field func(*model.MarkerRecord) **T) section {
	remove := func(db *gorm.DB, markerIDs []int64) error {
		return db.Where("marker_id IN ?", markerIDs).Delete(PT(new(T))).Error
	}
	return section{
		table: table,
		store: func(db *gorm.DB, record *model.MarkerRecord) error {
			current := *field(record)
			if current == nil {
				return remove(db, []int64{record.ID})
			}
			row := *current
			PT(&row).SetMarkerID(record.ID)
			return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(PT(&row)).Error
		},
		load: func(db *gorm.DB, record *model.MarkerRecord) error {
			var rows []T
			if err := db.Where("marker_id = ?", record.ID).Limit(1).Find(&rows).Error; err != nil {
				return err
			}
			if len(rows) > 0 {
				*field(record) = &rows[0]
			}
			return nil
		},
		remove: remove,
	}
}

func multiSection[T any, PT markerBound[T]](table string, field func(*model.MarkerRecord) *[]T) section {
	remove := func(db *gorm.DB, markerIDs []int64) error {
		return db.Where("marker_id IN ?", markerIDs).Delete(PT(new(T))).Error
	}
	return section{
		table: table,
		store: func(db *gorm.DB, record *model.MarkerRecord) error {
			if err := remove(db, []int64{record.ID}); err != nil {
				return err
			}
			current := *field(record)
			if len(current) == 0 {
				return nil
			}
			rows := make([]T, len(current))
			copy(rows, current)
			for i := range rows {
				PT(&rows[i]).SetMarkerID(record.ID)
			}
			return db.Create(&rows).Error
		},
		load: func(db *gorm.DB, record *model.MarkerRecord) error {
			var rows []T
			if err := db.Where("marker_id = ?", record.ID).Order("ordinal ASC").Find(&rows).Error; err != nil {
				return err
			}
			if len(rows) > 0 {
				*field(record) = rows
			}
			return nil
		},
		remove: remove,
	}
}
