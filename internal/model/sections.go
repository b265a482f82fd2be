package model

// Address holds the postal address section.
type Address struct {
	MarkerID    int64  `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	Street1     string `gorm:"column:street1;not null;default:''" json:"street1"`
	Street2     string `gorm:"column:street2;not null;default:''" json:"street2"`
	City        string `gorm:"column:city;not null;default:''" json:"city"`
	State       string `gorm:"column:state;not null;default:''" json:"state"`
	PostalCode  string `gorm:"column:postal_code;not null;default:''" json:"postal_code"`
	Country     string `gorm:"column:country;not null;default:''" json:"country"`
	SectionNote string `gorm:"column:section_note;type:text;not null;default:''" json:"section_note"`
}

func (Address) TableName() string { return "marker_address" }

// SetMarkerID binds the section to its marker.
func (s *Address) SetMarkerID(id int64) { s.MarkerID = id }

// Amenities holds the on-site amenities section.
type Amenities struct {
	MarkerID    int64  `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	Restrooms   string `gorm:"column:restrooms;not null;default:''" json:"restrooms"`
	Showers     string `gorm:"column:showers;not null;default:''" json:"showers"`
	Laundry     string `gorm:"column:laundry;not null;default:''" json:"laundry"`
	Wifi        string `gorm:"column:wifi;not null;default:''" json:"wifi"`
	Pumpout     string `gorm:"column:pumpout;not null;default:''" json:"pumpout"`
	Trash       string `gorm:"column:trash;not null;default:''" json:"trash"`
	SectionNote string `gorm:"column:section_note;type:text;not null;default:''" json:"section_note"`
}

func (Amenities) TableName() string { return "marker_amenities" }

// SetMarkerID binds the section to its marker.
func (s *Amenities) SetMarkerID(id int64) { s.MarkerID = id }

// Business holds trading hours and payment information.
type Business struct {
	MarkerID     int64  `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	Hours        string `gorm:"column:hours;type:text;not null;default:''" json:"hours"`
	PaymentTypes string `gorm:"column:payment_types;not null;default:''" json:"payment_types"`
	Currency     string `gorm:"column:currency;size:3;not null;default:''" json:"currency"`
	SectionNote  string `gorm:"column:section_note;type:text;not null;default:''" json:"section_note"`
}

func (Business) TableName() string { return "marker_business" }

// SetMarkerID binds the section to its marker.
func (s *Business) SetMarkerID(id int64) { s.MarkerID = id }

// BusinessPhoto is one ordered photo of a business listing.
type BusinessPhoto struct {
	MarkerID int64  `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	Ordinal  int    `gorm:"column:ordinal;primaryKey;autoIncrement:false" json:"ordinal"`
	URL      string `gorm:"column:url;not null" json:"url"`
}

func (BusinessPhoto) TableName() string { return "marker_business_photos" }

// SetMarkerID binds the section to its marker.
func (s *BusinessPhoto) SetMarkerID(id int64) { s.MarkerID = id }

// BusinessProgram holds the paid listing content.
type BusinessProgram struct {
	MarkerID     int64  `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	CallToAction string `gorm:"column:call_to_action;not null;default:''" json:"call_to_action"`
	Description  string `gorm:"column:description;type:text;not null;default:''" json:"description"`
	ChannelURL   string `gorm:"column:channel_url;not null;default:''" json:"channel_url"`
	ExpiresOn    int64  `gorm:"column:expires_on;not null;default:0" json:"expires_on"`
}

func (BusinessProgram) TableName() string { return "marker_business_program" }

// SetMarkerID binds the section to its marker.
func (s *BusinessProgram) SetMarkerID(id int64) { s.MarkerID = id }

// Competitor links a business to a nearby competing marker.
type Competitor struct {
	MarkerID     int64 `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	Ordinal      int   `gorm:"column:ordinal;primaryKey;autoIncrement:false" json:"ordinal"`
	CompetitorID int64 `gorm:"column:competitor_id;not null" json:"competitor_id"`
}

func (Competitor) TableName() string { return "marker_competitors" }

// SetMarkerID binds the section to its marker.
func (s *Competitor) SetMarkerID(id int64) { s.MarkerID = id }

// Contact holds phone, radio and web contact details.
type Contact struct {
	MarkerID   int64  `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	Phone      string `gorm:"column:phone;not null;default:''" json:"phone"`
	VHFChannel string `gorm:"column:vhf_channel;not null;default:''" json:"vhf_channel"`
	Email      string `gorm:"column:email;not null;default:''" json:"email"`
	Website    string `gorm:"column:website;not null;default:''" json:"website"`
}

func (Contact) TableName() string { return "marker_contact" }

// SetMarkerID binds the section to its marker.
func (s *Contact) SetMarkerID(id int64) { s.MarkerID = id }

// Dockage holds slip counts and rates.
type Dockage struct {
	MarkerID        int64   `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	TotalSlips      int     `gorm:"column:total_slips;not null;default:0" json:"total_slips"`
	TransientSlips  int     `gorm:"column:transient_slips;not null;default:0" json:"transient_slips"`
	MaxLengthMeters float64 `gorm:"column:max_length_m;not null;default:0" json:"max_length_m"`
	RatePerMeter    float64 `gorm:"column:rate_per_m;not null;default:0" json:"rate_per_m"`
	Currency        string  `gorm:"column:currency;size:3;not null;default:''" json:"currency"`
	SectionNote     string  `gorm:"column:section_note;type:text;not null;default:''" json:"section_note"`
}

func (Dockage) TableName() string { return "marker_dockage" }

// SetMarkerID binds the section to its marker.
func (s *Dockage) SetMarkerID(id int64) { s.MarkerID = id }

// Fuel holds fuel availability and prices.
type Fuel struct {
	MarkerID    int64   `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	HasDiesel   bool    `gorm:"column:has_diesel;not null;default:false" json:"has_diesel"`
	HasGas      bool    `gorm:"column:has_gas;not null;default:false" json:"has_gas"`
	DieselPrice float64 `gorm:"column:diesel_price;not null;default:0" json:"diesel_price"`
	GasPrice    float64 `gorm:"column:gas_price;not null;default:0" json:"gas_price"`
	Currency    string  `gorm:"column:currency;size:3;not null;default:''" json:"currency"`
	SectionNote string  `gorm:"column:section_note;type:text;not null;default:''" json:"section_note"`
}

func (Fuel) TableName() string { return "marker_fuel" }

// SetMarkerID binds the section to its marker.
func (s *Fuel) SetMarkerID(id int64) { s.MarkerID = id }

// Moorings holds mooring ball counts.
type Moorings struct {
	MarkerID          int64  `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	TotalMoorings     int    `gorm:"column:total_moorings;not null;default:0" json:"total_moorings"`
	TransientMoorings int    `gorm:"column:transient_moorings;not null;default:0" json:"transient_moorings"`
	SectionNote       string `gorm:"column:section_note;type:text;not null;default:''" json:"section_note"`
}

func (Moorings) TableName() string { return "marker_moorings" }

// SetMarkerID binds the section to its marker.
func (s *Moorings) SetMarkerID(id int64) { s.MarkerID = id }

// Navigation holds approach and dock depths.
type Navigation struct {
	MarkerID           int64   `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	ApproachDepthMeter float64 `gorm:"column:approach_depth_m;not null;default:0" json:"approach_depth_m"`
	DockDepthMeter     float64 `gorm:"column:dock_depth_m;not null;default:0" json:"dock_depth_m"`
	TideRangeMeter     float64 `gorm:"column:tide_range_m;not null;default:0" json:"tide_range_m"`
	SectionNote        string  `gorm:"column:section_note;type:text;not null;default:''" json:"section_note"`
}

func (Navigation) TableName() string { return "marker_navigation" }

// SetMarkerID binds the section to its marker.
func (s *Navigation) SetMarkerID(id int64) { s.MarkerID = id }

// Retail holds nearby shopping information.
type Retail struct {
	MarkerID       int64  `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	Groceries      string `gorm:"column:groceries;not null;default:''" json:"groceries"`
	MarineSupplies string `gorm:"column:marine_supplies;not null;default:''" json:"marine_supplies"`
	Restaurants    string `gorm:"column:restaurants;not null;default:''" json:"restaurants"`
	SectionNote    string `gorm:"column:section_note;type:text;not null;default:''" json:"section_note"`
}

func (Retail) TableName() string { return "marker_retail" }

// SetMarkerID binds the section to its marker.
func (s *Retail) SetMarkerID(id int64) { s.MarkerID = id }

// Services holds repair and haul-out information.
type Services struct {
	MarkerID    int64  `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	Repair      string `gorm:"column:repair;not null;default:''" json:"repair"`
	Haulout     string `gorm:"column:haulout;not null;default:''" json:"haulout"`
	Electrical  string `gorm:"column:electrical;not null;default:''" json:"electrical"`
	SectionNote string `gorm:"column:section_note;type:text;not null;default:''" json:"section_note"`
}

func (Services) TableName() string { return "marker_services" }

// SetMarkerID binds the section to its marker.
func (s *Services) SetMarkerID(id int64) { s.MarkerID = id }

// MarkerMeta holds attribution for a marker.
type MarkerMeta struct {
	MarkerID    int64  `gorm:"column:marker_id;primaryKey;autoIncrement:false" json:"marker_id"`
	Attribution string `gorm:"column:attribution;not null;default:''" json:"attribution"`
	LastEditor  string `gorm:"column:last_editor;not null;default:''" json:"last_editor"`
	CreatedOn   int64  `gorm:"column:created_on;not null;default:0" json:"created_on"`
}

func (MarkerMeta) TableName() string { return "marker_meta" }

// SetMarkerID binds the section to its marker.
func (s *MarkerMeta) SetMarkerID(id int64) { s.MarkerID = id }
