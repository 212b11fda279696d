package chart

import (
	"strings"

	"tablesql/internal/schema"
)

// Role is the part a column can play in a chart.
type Role string

const (
	RoleTemporalDate      Role = "temporal (time/date dimension)"
	RoleTemporalTime      Role = "temporal (time dimension)"
	RoleMetricCount       Role = "metric (count/quantity)"
	RoleMetricMonetary    Role = "metric (monetary value)"
	RoleMetricRatio       Role = "metric (ratio/percentage)"
	RoleMetricNumeric     Role = "metric (numeric measure)"
	RoleDimensionID       Role = "dimension (category/identifier)"
	RoleDimensionCategory Role = "dimension (categorical)"
	RoleDimensionText     Role = "dimension (text/category)"
	RoleDimensionBinary   Role = "dimension (binary category)"
	RoleUnknown           Role = "unknown"
)

func (r Role) Temporal() bool  { return strings.HasPrefix(string(r), "temporal") }
func (r Role) Metric() bool    { return strings.HasPrefix(string(r), "metric") }
func (r Role) Dimension() bool { return strings.HasPrefix(string(r), "dimension") }

// ClassifyColumnRole derives a column's chart role from its type, refined by
// hints in its name and description.
//
// Edge cases:
//   - Name and description hints only refine textual columns, so a numeric
//     "update_count" stays a metric.
//   - An unknown type is RoleUnknown.
func ClassifyColumnRole(c schema.ColumnMetadata) Role {
	name := strings.ToLower(c.Name)
	desc := strings.ToLower(c.Description)
	textual := c.DataType == schema.String || c.DataType == schema.Text

	switch {
	case c.DataType == schema.Date || textual && (strings.Contains(name, "date") || strings.Contains(desc, "date")):
		return RoleTemporalDate
	case c.DataType == schema.Time || textual && strings.Contains(name, "time"):
		return RoleTemporalTime
	}

	switch c.DataType {
	case schema.Integer, schema.Decimal:
		switch {
		case containsAny(desc, "count", "number of"):
			return RoleMetricCount
		case containsAny(desc, "price", "cost", "amount", "salary"):
			return RoleMetricMonetary
		case containsAny(desc, "percentage", "rate"):
			return RoleMetricRatio
		}
		return RoleMetricNumeric
	case schema.Currency:
		return RoleMetricMonetary
	case schema.Percentage:
		return RoleMetricRatio
	case schema.String, schema.Text:
		switch {
		case containsAny(desc, "name", "title", "label"):
			return RoleDimensionID
		case containsAny(desc, "type", "category", "group"):
			return RoleDimensionCategory
		}
		return RoleDimensionText
	case schema.Boolean:
		return RoleDimensionBinary
	}
	return RoleUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
