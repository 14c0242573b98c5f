package gallery

import (
	"fmt"
	"image"

	"github.com/rpattn/unitdash/internal/domain"
)

// Draw types.
const (
	DrawTypePSTH         = "psth"
	DrawTypeDriftMetrics = "drift metrics"
)

// Default bucket prefixes of the figure folders.
const (
	DefaultPSTHPrefix         = "aind-behavior-data/Han/ephys/report/all_units/"
	DefaultDriftMetricsPrefix = "aind-behavior-data/Han/ephys/report/unit_drift_metrics/"
)

// OthersArea is the area of interest whose PSTH figures sit directly under the
// prefix instead of in a per-area folder.
const OthersArea = "others"

// psthCrop trims the margins of the rendered PSTH report.
var psthCrop = image.Rect(500, 140, 3000, 2800)

// DrawType describes how figures of one class are located and trimmed.
type DrawType struct {
	Name   string
	Prefix string
	// Glob builds the filename pattern for a unit, relative to the folder.
	Glob func(key domain.UnitKey) string
	// Folder returns the folder below Prefix the figure lives in.
	Folder func(key domain.UnitKey) string
	// Crop is the area kept from the decoded image. Nil keeps the whole image.
	Crop *image.Rectangle
}

// Pattern returns the full store pattern for a unit.
func (d DrawType) Pattern(key domain.UnitKey) string {
	folder := ""
	if d.Folder != nil {
		folder = d.Folder(key)
	}
	return d.Prefix + folder + d.Glob(key)
}

func psthDrawType(prefix string) DrawType {
	crop := psthCrop
	return DrawType{
		Name:   DrawTypePSTH,
		Prefix: prefix,
		Glob: func(key domain.UnitKey) string {
			return fmt.Sprintf("*%s_%s_%d*u%03d*", key.H2O, key.DateStamp(), key.InsertionNumber, key.Unit)
		},
		Folder: func(key domain.UnitKey) string {
			if key.AreaOfInterest == OthersArea {
				return ""
			}
			return key.AreaOfInterest + "/"
		},
		Crop: &crop,
	}
}

func driftMetricsDrawType(prefix string) DrawType {
	return DrawType{
		Name:   DrawTypeDriftMetrics,
		Prefix: prefix,
		Glob: func(key domain.UnitKey) string {
			return fmt.Sprintf("*%d_%d_%d_%03d*", key.SubjectID, key.Session, key.InsertionNumber, key.Unit)
		},
	}
}
