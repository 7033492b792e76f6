package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/uhi-cli/internal/model"
)

// WriteClassReport writes an XLSX workbook summarizing a completed run: one
// sheet with the per-class pixel tally and one with the run parameters.
func WriteClassReport(path string, counts []model.ClassCount, params model.Parameters) error {
	file := xlsx.NewFile()

	classes, err := file.AddSheet("Classes")
	if err != nil {
		return eris.Wrap(err, "report: add classes sheet")
	}

	header := classes.AddRow()
	for _, h := range []string{"Class", "Label", "Pixels", "Share"} {
		header.AddCell().Value = h
	}

	var total int64
	for _, c := range counts {
		total += c.Pixels
	}
	for _, c := range counts {
		row := classes.AddRow()
		row.AddCell().SetInt(c.Class)
		row.AddCell().Value = c.Label
		row.AddCell().SetInt64(c.Pixels)
		share := 0.0
		if total > 0 {
			share = float64(c.Pixels) / float64(total)
		}
		row.AddCell().SetFloatWithFormat(share, "0.00%")
	}
	totalRow := classes.AddRow()
	totalRow.AddCell().Value = ""
	totalRow.AddCell().Value = "Total"
	totalRow.AddCell().SetInt64(total)

	sheet, err := file.AddSheet("Parameters")
	if err != nil {
		return eris.Wrap(err, "report: add parameters sheet")
	}
	addParam := func(name string, value any) {
		row := sheet.AddRow()
		row.AddCell().Value = name
		row.AddCell().SetValue(value)
	}
	addParam("center_lng", params.CenterLng)
	addParam("center_lat", params.CenterLat)
	addParam("simplify_meters", params.SimplifyMeters)
	addParam("start_date", params.StartDate)
	addParam("end_date", params.EndDate)
	addParam("month_from", params.MonthFrom)
	addParam("month_to", params.MonthTo)
	addParam("max_cloud_percent", params.MaxCloudPercent)
	addParam("urban_class", params.UrbanClass)
	addParam("mean_scale", params.MeanScale)
	addParam("export_scale", params.ExportScale)
	addParam("export_crs", params.ExportCRS)

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}
