package model

// Language is a display language available for translations.
type Language struct {
	ID   int    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Code string `gorm:"column:code;size:16;not null;uniqueIndex" json:"code"`
	Name string `gorm:"column:name;not null;default:''" json:"name"`
}

// TableName provides the explicit table binding for GORM.
func (Language) TableName() string {
	return "languages"
}

// MustacheTemplate is a named presentation template.
type MustacheTemplate struct {
	Name string `gorm:"column:name;primaryKey;size:64" json:"name"`
	Body string `gorm:"column:body;type:text;not null" json:"body"`
}

// TableName provides the explicit table binding for GORM.
func (MustacheTemplate) TableName() string {
	return "mustache_templates"
}

// Translation is one localized string.
type Translation struct {
	LanguageID int    `gorm:"column:language_id;primaryKey;autoIncrement:false" json:"language_id"`
	Key        string `gorm:"column:translation_key;primaryKey;size:128" json:"translation_key"`
	Value      string `gorm:"column:value;type:text;not null" json:"value"`
}

// TableName provides the explicit table binding for GORM.
func (Translation) TableName() string {
	return "translations"
}

// VersionRow is the single row identifying a database file.
type VersionRow struct {
	ID      int    `gorm:"column:id;primaryKey;autoIncrement:false" json:"id"`
	Version string `gorm:"column:version;size:64;not null" json:"version"`
}

// TableName provides the explicit table binding for GORM.
func (VersionRow) TableName() string {
	return "version"
}

// SchemaModels lists every table of a library database in creation order.
func SchemaModels() []any {
	return []any{
		&VersionRow{},
		&Marker{},
		&Address{},
		&Amenities{},
		&Business{},
		&BusinessPhoto{},
		&BusinessProgram{},
		&Competitor{},
		&Contact{},
		&Dockage{},
		&Fuel{},
		&Moorings{},
		&Navigation{},
		&Retail{},
		&Services{},
		&MarkerMeta{},
		&Review{},
		&ReviewPhoto{},
		&TileLastUpdate{},
		&Language{},
		&MustacheTemplate{},
		&Translation{},
	}
}
