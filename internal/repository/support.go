package repository

import (
	"errors"

	"github.com/MarcoPoloResearchLab/activecaptain/internal/model"
	"gorm.io/gorm"
)

// SupportAdapter reads and replaces the low-cardinality reference tables.
type SupportAdapter struct {
	db *gorm.DB
}

// Support returns the support-table adapter over db.
func Support(db *gorm.DB) SupportAdapter {
	return SupportAdapter{db: db}
}

// SupportTables is the full content of the reference tables.
type SupportTables struct {
	Languages    []model.Language
	Templates    []model.MustacheTemplate
	Translations []model.Translation
}

// Languages returns every language ordered by id.
func (a SupportAdapter) Languages() ([]model.Language, error) {
	var rows []model.Language
	err := a.db.Order("id ASC").Find(&rows).Error
	return rows, err
}

// Templates returns every template ordered by name.
func (a SupportAdapter) Templates() ([]model.MustacheTemplate, error) {
	var rows []model.MustacheTemplate
	err := a.db.Order("name ASC").Find(&rows).Error
	return rows, err
}

// Template returns one template by name.
func (a SupportAdapter) Template(name string) (model.MustacheTemplate, bool, error) {
	var row model.MustacheTemplate
	err := a.db.Where("name = ?", name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.MustacheTemplate{}, false, nil
	}
	if err != nil {
		return model.MustacheTemplate{}, false, err
	}
	return row, true, nil
}

// Translations returns the strings of one language, or of every language when languageID is 0.
func (a SupportAdapter) Translations(languageID int) ([]model.Translation, error) {
	query := a.db.Order("language_id ASC").Order("translation_key ASC")
	if languageID != 0 {
		query = query.Where("language_id = ?", languageID)
	}
	var rows []model.Translation
	err := query.Find(&rows).Error
	return rows, err
}

// Load returns the whole content of the reference tables.
func (a SupportAdapter) Load() (SupportTables, error) {
	languages, err := a.Languages()
	if err != nil {
		return SupportTables{}, err
	}
	templates, err := a.Templates()
	if err != nil {
		return SupportTables{}, err
	}
	translations, err := a.Translations(0)
	if err != nil {
		return SupportTables{}, err
	}
	return SupportTables{Languages: languages, Templates: templates, Translations: translations}, nil
}

// Replace overwrites each non-empty set wholesale. Empty sets leave the stored rows untouched.
func (a SupportAdapter) Replace(tables SupportTables) error {
	if len(tables.Languages) > 0 {
		if err := replaceAll(a.db, &model.Language{}, tables.Languages); err != nil {
			return err
		}
	}
	if len(tables.Templates) > 0 {
		if err := replaceAll(a.db, &model.MustacheTemplate{}, tables.Templates); err != nil {
			return err
		}
	}
	if len(tables.Translations) > 0 {
		if err := replaceAll(a.db, &model.Translation{}, tables.Translations); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether no set carries rows.
func (t SupportTables) IsEmpty() bool {
	return len(t.Languages) == 0 && len(t.Templates) == 0 && len(t.Translations) == 0
}

func replaceAll[T any](db *gorm.DB, table *T, rows []T) error {
	if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(table).Error; err != nil {
		return err
	}
	return db.CreateInBatches(&rows, 200).Error
}
