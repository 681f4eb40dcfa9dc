// Package resource describes the infrastructure asset types served by the
// generic CRUD and geo endpoints. Each Definition is pure configuration:
// where the documents live, which key carries the geometry, what shape the
// geometry must have, which attributes are accepted and who may write.
package resource

import (
	"github.com/go-playground/validator/v10"

	"h2grid/internal/geo"
	"h2grid/internal/model"
)

// FieldType is the JSON shape an attribute is coerced to.
type FieldType int

const (
	Number FieldType = iota
	String
	Date
	StringList
)

// Field declares one type-specific attribute.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	Enum     []string
	Default  interface{}
	// ReadOnly attributes are maintained by the server and ignored in
	// client payloads.
	ReadOnly bool
}

// Policy lists the roles allowed to perform each write.
type Policy struct {
	Create []model.Role
	Update []model.Role
	Delete []model.Role
}

// Definition configures one asset type.
type Definition struct {
	Route         string
	Table         string
	TypeName      string
	Label         string
	GeometryField string
	GeometryKind  geo.Kind
	Fields        []Field
	Policy        Policy
}

var (
	adminOnly      = []model.Role{model.RoleAdmin}
	plannerOrAdmin = []model.Role{model.RolePlanner, model.RoleAdmin}

	defaultPolicy = Policy{Create: adminOnly, Update: plannerOrAdmin, Delete: adminOnly}

	commissioningDate = Field{Name: "commissioningDate", Type: Date}
	attachments       = Field{Name: "attachments", Type: StringList, ReadOnly: true}
)

var definitions = []Definition{
	{
		Route: "plants", Table: "plants", TypeName: "Plant", Label: "Plant",
		GeometryField: "location", GeometryKind: geo.KindPoint,
		Fields: []Field{
			{Name: "capacityMW", Type: Number, Required: true},
			commissioningDate,
			attachments,
		},
		Policy: defaultPolicy,
	},
	{
		Route: "storages", Table: "storages", TypeName: "Storage", Label: "Storage",
		GeometryField: "location", GeometryKind: geo.KindPoint,
		Fields: []Field{
			{Name: "capacityTonnes", Type: Number, Required: true},
			commissioningDate,
			attachments,
		},
		Policy: defaultPolicy,
	},
	{
		Route: "pipelines", Table: "pipelines", TypeName: "Pipeline", Label: "Pipeline",
		GeometryField: "path", GeometryKind: geo.KindLineString,
		Fields: []Field{
			{Name: "capacityTonnesPerDay", Type: Number, Required: true},
			commissioningDate,
			attachments,
		},
		Policy: defaultPolicy,
	},
	{
		Route: "hubs", Table: "hubs", TypeName: "Hub", Label: "Hub",
		GeometryField: "location", GeometryKind: geo.KindPoint,
		Fields: []Field{
			{Name: "type", Type: String, Enum: []string{"distribution", "demand", "other"}, Default: "distribution"},
			attachments,
		},
		Policy: defaultPolicy,
	},
	{
		Route: "renewables", Table: "renewable_sources", TypeName: "RenewableSource", Label: "Renewable source",
		GeometryField: "location", GeometryKind: geo.KindPoint,
		Fields: []Field{
			{Name: "type", Type: String, Required: true, Enum: []string{"solar", "wind", "hydro", "other"}},
			{Name: "capacityMW", Type: Number},
			attachments,
		},
		Policy: defaultPolicy,
	},
	{
		Route: "demands", Table: "demand_centers", TypeName: "DemandCenter", Label: "Demand center",
		GeometryField: "location", GeometryKind: geo.KindPoint,
		Fields: []Field{
			{Name: "demandMW", Type: Number},
			{Name: "type", Type: String, Enum: []string{"industrial", "urban", "other"}, Default: "urban"},
			attachments,
		},
		Policy: defaultPolicy,
	},
	{
		Route: "zones", Table: "regulatory_zones", TypeName: "RegulatoryZone", Label: "Regulatory zone",
		GeometryField: "area", GeometryKind: geo.KindPolygon,
		Fields: []Field{
			{Name: "zoneType", Type: String, Enum: []string{"restricted", "priority", "neutral"}, Default: "neutral"},
			{Name: "description", Type: String},
			attachments,
		},
		Policy: defaultPolicy,
	},
}

// All returns every asset definition in route order.
func All() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// ByRoute finds a definition by its URL segment, e.g. "plants".
func ByRoute(route string) (Definition, bool) {
	for _, d := range definitions {
		if d.Route == route {
			return d, true
		}
	}
	return Definition{}, false
}

// ByTypeName finds a definition by its reference name, e.g. "Plant".
func ByTypeName(name string) (Definition, bool) {
	for _, d := range definitions {
		if d.TypeName == name {
			return d, true
		}
	}
	return Definition{}, false
}

// IsTypeName reports whether name is a known asset reference name.
func IsTypeName(name string) bool {
	_, ok := ByTypeName(name)
	return ok
}

// RegisterValidations adds the "assettype" tag to v.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("assettype", func(fl validator.FieldLevel) bool {
		return IsTypeName(fl.Field().String())
	})
}
