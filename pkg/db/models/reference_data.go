package models

import "github.com/google/uuid"

// Reference tables are read-only for this service; they are maintained elsewhere.

type Vertical struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name string    `gorm:"column:name;type:text;not null"`
}

func (Vertical) TableName() string { return "verticals" }

type Supplier struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	VerticalID uuid.UUID `gorm:"column:vertical_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;type:text;not null"`
	IsActive   bool      `gorm:"column:is_active;not null"`
}

func (Supplier) TableName() string { return "suppliers" }

type UserType struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name string    `gorm:"column:name;type:text;not null"`
}

func (UserType) TableName() string { return "user_types" }

type ProductType struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name string    `gorm:"column:name;type:text;not null"`
}

func (ProductType) TableName() string { return "product_types" }

type Product struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductTypeID uuid.UUID `gorm:"column:product_type_id;type:uuid;not null"`
	SupplierID    uuid.UUID `gorm:"column:supplier_id;type:uuid;not null"`
	Name          string    `gorm:"column:name;type:text;not null"`
}

func (Product) TableName() string { return "products" }

type Segment struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name     string    `gorm:"column:name;type:text;not null"`
	Position int       `gorm:"column:position;not null;default:0"`
}

func (Segment) TableName() string { return "segments" }

type Region struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name     string    `gorm:"column:name;type:text;not null"`
	Position int       `gorm:"column:position;not null;default:0"`
}

func (Region) TableName() string { return "regions" }

type Governorate struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	RegionID uuid.UUID `gorm:"column:region_id;type:uuid;not null"`
	Name     string    `gorm:"column:name;type:text;not null"`
	Position int       `gorm:"column:position;not null;default:0"`
}

func (Governorate) TableName() string { return "governorates" }

type District struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	GovernorateID uuid.UUID `gorm:"column:governorate_id;type:uuid;not null"`
	Name          string    `gorm:"column:name;type:text;not null"`
	Position      int       `gorm:"column:position;not null;default:0"`
}

func (District) TableName() string { return "districts" }
