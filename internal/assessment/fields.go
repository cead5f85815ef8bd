// Package assessment builds a damage-assessment feature class from a
// tax-parcel layer: a snapshot of parcel ownership and valuation plus the
// inspection fields a field crew fills in after a disaster.
package assessment

import "github.com/civic-gis/gis-cli/internal/layer"

// Damage-extent subtype codes.
const (
	DamageAffected     = 0
	DamageMinor        = 1
	DamageMajor        = 2
	DamageDestroyed    = 3
	DamageInaccessible = 4
	DamageNotAssessed  = 5
	DamageNotImpacted  = 6
)

// PlacardNotAssessed is the default occupancy placard code.
const PlacardNotAssessed = 0

// Catalog returns the assessment feature-class definition. DamageExtent is
// the subtype field; each damage extent narrows the PercentLost domain so a
// parcel marked Minor Damage cannot be recorded as 100% destroyed.
func Catalog(srid int) *layer.Layer {
	return &layer.Layer{
		Name:     "building_assessment",
		GeomType: layer.GeomPolygon,
		SRID:     srid,
		Fields: []layer.Field{
			{Name: "InspectorId", Alias: "Inspector ID", Type: layer.FieldText, Length: 50},
			{Name: "InspectionDate", Alias: "Date of Inspection", Type: layer.FieldDate},
			{Name: "USNGCoord", Alias: "USNG Grid", Type: layer.FieldText, Length: 50},
			{Name: "ACCOUNT_NUM", Alias: "Parcel Account", Type: layer.FieldText, Length: 50},
			{Name: "DamageExtent", Alias: "Damage Extent", Type: layer.FieldInteger},
			{Name: "PercentLost", Alias: "Damage Percent", Type: layer.FieldInteger},
			{Name: "Placard", Alias: "Placard", Type: layer.FieldInteger, Domain: "EM_Placard"},
			{Name: "DamageDesc", Alias: "Description of Damage", Type: layer.FieldText, Length: 500},
			{Name: "COMMENT", Alias: "Additional Comments", Type: layer.FieldText, Length: 500},
			{Name: "BIZ_NAME", Alias: "Parcel Name", Type: layer.FieldText, Length: 150},
			{Name: "OWNER_NAME_1", Alias: "Parcel Owner 1", Type: layer.FieldText, Length: 150},
			{Name: "OWNER_NAME_2", Alias: "Parcel Owner 2", Type: layer.FieldText, Length: 150},
			{Name: "OWNER_CONTACT", Alias: "Owner Contact 1", Type: layer.FieldText, Length: 150},
			{Name: "OWNER_ADDRESS", Alias: "Owner Contact 2", Type: layer.FieldText, Length: 200},
			{Name: "OWNER_SUITE", Alias: "Owner Suite", Type: layer.FieldText, Length: 50},
			{Name: "OWNER_CITY", Alias: "Owner City", Type: layer.FieldText, Length: 50},
			{Name: "OWNER_STATE", Alias: "Owner State", Type: layer.FieldText, Length: 50},
			{Name: "OWNER_COUNTRY", Alias: "Owner Country", Type: layer.FieldText, Length: 50},
			{Name: "OWNER_ZIPCODE", Alias: "Owner Zip", Type: layer.FieldText, Length: 9},
			{Name: "STREET_NUM", Alias: "Parcel St Number", Type: layer.FieldInteger},
			{Name: "STREET_HALF_NUM", Alias: "Parcel St Number Half", Type: layer.FieldText, Length: 5},
			{Name: "FULL_STREET_NAME", Alias: "Parcel Full Street Name", Type: layer.FieldText, Length: 60},
			{Name: "BLDG_ID", Alias: "Parcel Building", Type: layer.FieldText, Length: 5},
			{Name: "UNIT_ID", Alias: "Parcel Unit", Type: layer.FieldText, Length: 5},
			{Name: "IMPR_VAL", Alias: "Improvement Value", Type: layer.FieldDouble, Precision: 8},
			{Name: "LAND_VAL", Alias: "Land Value", Type: layer.FieldDouble, Precision: 8},
			{Name: "LAND_AG_EXEMPT", Alias: "Ag Exempt", Type: layer.FieldInteger},
			{Name: "AG_USE_VAL", Alias: "Ag Use Value", Type: layer.FieldInteger},
			{Name: "TOT_VAL", Alias: "Market Value", Type: layer.FieldDouble, Precision: 8},
			{Name: "SPTD_CODE", Alias: "SPTD Code", Type: layer.FieldText, Length: 50},
			{Name: "DWEB_ACCT", Alias: "Appraisal Account Link", Type: layer.FieldText, Length: 200},
			{Name: "DWEB_HIST", Alias: "Appraisal History Link", Type: layer.FieldText, Length: 200},
			{Name: "FULL_ZONE", Alias: "Full Zone", Type: layer.FieldText, Length: 50},
		},
		Domains: map[string]layer.Domain{
			"EM_Placard": {
				Name:        "EM_Placard",
				Description: "Occupancy Placard for Building Services",
				FieldType:   layer.FieldInteger,
				Values:      map[string]string{"0": "Not Assessed", "1": "Green", "2": "Yellow", "3": "Red"},
			},
			"EM_DmgAffected": {
				Name:        "EM_DmgAffected",
				Description: "Percent lost when Affected is selected",
				FieldType:   layer.FieldInteger,
				Values:      map[string]string{"0": "0", "5": "5", "10": "10"},
			},
			"EM_DmgMinor": {
				Name:        "EM_DmgMinor",
				Description: "Percent lost when Minor Damage is selected",
				FieldType:   layer.FieldInteger,
				Values:      map[string]string{"10": "10", "20": "20", "30": "30", "40": "40", "50": "50"},
			},
			"EM_DmgMajor": {
				Name:        "EM_DmgMajor",
				Description: "Percent lost when Major Damage is selected",
				FieldType:   layer.FieldInteger,
				Values:      map[string]string{"50": "50", "60": "60", "70": "70", "80": "80", "90": "90"},
			},
			"EM_DmgDestroyed": {
				Name:        "EM_DmgDestroyed",
				Description: "Percent lost when Destroyed is selected",
				FieldType:   layer.FieldInteger,
				Values:      map[string]string{"90": "90", "95": "95", "100": "100"},
			},
		},
		SubtypeField:   "DamageExtent",
		DefaultSubtype: DamageNotAssessed,
		Subtypes: map[int]layer.Subtype{
			DamageAffected: {
				Code: DamageAffected, Description: "Affected",
				FieldDomains: map[string]string{"PercentLost": "EM_DmgAffected"},
			},
			DamageMinor: {
				Code: DamageMinor, Description: "Minor Damage",
				FieldDomains: map[string]string{"PercentLost": "EM_DmgMinor"},
			},
			DamageMajor: {
				Code: DamageMajor, Description: "Major Damage",
				FieldDomains: map[string]string{"PercentLost": "EM_DmgMajor"},
			},
			DamageDestroyed: {
				Code: DamageDestroyed, Description: "Destroyed",
				FieldDomains: map[string]string{"PercentLost": "EM_DmgDestroyed"},
			},
			DamageInaccessible: {Code: DamageInaccessible, Description: "Inaccessible"},
			DamageNotAssessed:  {Code: DamageNotAssessed, Description: "Not Assessed"},
			DamageNotImpacted:  {Code: DamageNotImpacted, Description: "Not Impacted"},
		},
	}
}
