package resource

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/geo"
	"h2grid/internal/model"
)

var validate = validator.New()

// Decode builds a new asset from a client payload. Unknown keys and
// server-maintained keys (id, createdBy, timestamps) are dropped, defaults
// are applied and every problem is reported per field.
func (d Definition) Decode(payload map[string]interface{}) (*model.Asset, error) {
	return d.decode(payload, nil)
}

// Merge applies a partial payload on top of existing and returns the
// updated asset. Keys absent from patch keep their stored value.
func (d Definition) Merge(existing *model.Asset, patch map[string]interface{}) (*model.Asset, error) {
	doc := existing.Document()
	for k, v := range patch {
		doc[k] = v
	}
	asset, err := d.decode(doc, existing.Attributes)
	if err != nil {
		return nil, err
	}
	asset.ID = existing.ID
	asset.CreatedBy = existing.CreatedBy
	asset.CreatedAt = existing.CreatedAt
	return asset, nil
}

func (d Definition) decode(doc map[string]interface{}, stored datatypes.JSONMap) (*model.Asset, error) {
	var verr apperrors.ValidationError
	asset := &model.Asset{GeometryField: d.GeometryField, Attributes: datatypes.JSONMap{}}

	name, ok := doc["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		verr.Add("name", "is required")
	}
	asset.Name = strings.TrimSpace(name)

	asset.Status = model.AssetStatusExisting
	if raw, present := doc["status"]; present && raw != nil {
		s, ok := raw.(string)
		if !ok || !model.AssetStatus(s).Valid() {
			verr.Add("status", "must be one of existing, planned")
		} else {
			asset.Status = model.AssetStatus(s)
		}
	}

	if raw, present := doc["owner"]; present && raw != nil {
		if s, ok := raw.(string); ok {
			asset.Owner = s
		} else {
			verr.Add("owner", "must be a string")
		}
	}

	if raw, present := doc[d.GeometryField]; !present || raw == nil {
		verr.Add(d.GeometryField, "is required")
	} else if g, err := geo.ParseValue(raw, d.GeometryKind); err != nil {
		verr.Add(d.GeometryField, err.Error())
	} else if encoded, err := geo.Marshal(g); err != nil {
		verr.Add(d.GeometryField, err.Error())
	} else {
		b := geo.Bound(g)
		asset.Geometry = datatypes.JSON(encoded)
		asset.MinLng, asset.MinLat = b.Min.Lon(), b.Min.Lat()
		asset.MaxLng, asset.MaxLat = b.Max.Lon(), b.Max.Lat()
	}

	for _, f := range d.Fields {
		if f.ReadOnly {
			if v, ok := stored[f.Name]; ok {
				asset.Attributes[f.Name] = v
			}
			continue
		}
		raw, present := doc[f.Name]
		if !present || raw == nil {
			switch {
			case f.Default != nil:
				asset.Attributes[f.Name] = f.Default
			case f.Required:
				verr.Add(f.Name, "is required")
			}
			continue
		}
		v, err := coerce(f, raw)
		if err != nil {
			verr.Add(f.Name, err.Error())
			continue
		}
		asset.Attributes[f.Name] = v
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return asset, nil
}

func coerce(f Field, raw interface{}) (interface{}, error) {
	switch f.Type {
	case Number:
		var n float64
		switch v := raw.(type) {
		case float64:
			n = v
		case int:
			n = float64(v)
		case json.Number:
			parsed, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("must be a number")
			}
			n = parsed
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("must be a number")
			}
			n = parsed
		default:
			return nil, fmt.Errorf("must be a number")
		}
		if err := validate.Var(n, "gte=0"); err != nil {
			return nil, fmt.Errorf("must not be negative")
		}
		return n, nil
	case String:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		if len(f.Enum) > 0 {
			if err := validate.Var(s, "oneof="+strings.Join(f.Enum, " ")); err != nil {
				return nil, fmt.Errorf("must be one of %s", strings.Join(f.Enum, ", "))
			}
		}
		return s, nil
	case Date:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("must be a date string")
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339), nil
			}
		}
		return nil, fmt.Errorf("must be an ISO 8601 date")
	case StringList:
		list, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("must be a list of strings")
		}
		for _, item := range list {
			if _, ok := item.(string); !ok {
				return nil, fmt.Errorf("must be a list of strings")
			}
		}
		return list, nil
	}
	return nil, fmt.Errorf("unsupported field type")
}
