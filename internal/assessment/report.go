package assessment

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/civic-gis/gis-cli/internal/layer"
)

// extentSummary aggregates parcels under one damage-extent code.
type extentSummary struct {
	Count          int
	ImprovementVal float64
	LandVal        float64
	TotalVal       float64
}

// extentOrder fixes the report row order.
var extentOrder = []int{
	DamageAffected, DamageMinor, DamageMajor, DamageDestroyed,
	DamageInaccessible, DamageNotAssessed, DamageNotImpacted,
}

// WriteReport writes an XLSX summary of the assessment: parcel counts and
// improvement, land, and market value per damage extent. Intended for FEMA
// aid reporting.
func WriteReport(path string, cat *layer.Layer, features []layer.Feature) error {
	summaries := summarize(features)

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Damage Summary")
	if err != nil {
		return eris.Wrap(err, "assessment: add report sheet")
	}

	header := sheet.AddRow()
	for _, title := range []string{
		"Damage Extent", "Parcels", "Improvement Value", "Land Value", "Market Value",
	} {
		header.AddCell().SetString(title)
	}

	var total extentSummary
	for _, code := range extentOrder {
		s := summaries[code]

		row := sheet.AddRow()
		row.AddCell().SetString(extentDescription(cat, code))
		row.AddCell().SetInt(s.Count)
		row.AddCell().SetFloat(s.ImprovementVal)
		row.AddCell().SetFloat(s.LandVal)
		row.AddCell().SetFloat(s.TotalVal)

		total.Count += s.Count
		total.ImprovementVal += s.ImprovementVal
		total.LandVal += s.LandVal
		total.TotalVal += s.TotalVal
	}

	totalRow := sheet.AddRow()
	totalRow.AddCell().SetString("Total")
	totalRow.AddCell().SetInt(total.Count)
	totalRow.AddCell().SetFloat(total.ImprovementVal)
	totalRow.AddCell().SetFloat(total.LandVal)
	totalRow.AddCell().SetFloat(total.TotalVal)

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "assessment: save report %s", path)
	}
	return nil
}

// summarize buckets features by damage extent. Unparseable extents count as
// Not Assessed.
func summarize(features []layer.Feature) map[int]extentSummary {
	out := make(map[int]extentSummary, len(extentOrder))
	for _, f := range features {
		code, ok := f.IntAttr("DamageExtent")
		if !ok {
			code = DamageNotAssessed
		}

		s := out[code]
		s.Count++
		if v, ok := f.FloatAttr("IMPR_VAL"); ok {
			s.ImprovementVal += v
		}
		if v, ok := f.FloatAttr("LAND_VAL"); ok {
			s.LandVal += v
		}
		if v, ok := f.FloatAttr("TOT_VAL"); ok {
			s.TotalVal += v
		}
		out[code] = s
	}
	return out
}

func extentDescription(cat *layer.Layer, code int) string {
	if st, ok := cat.Subtypes[code]; ok {
		return st.Description
	}
	return "Unknown"
}
