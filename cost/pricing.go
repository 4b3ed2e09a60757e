// Package cost estimates monthly spend per resource from a static
// price table. Estimates feed finding savings; they are deliberately
// coarse and carry no regional variation.
package cost

import "github.com/kulu-io/kulu/types"

// HoursPerMonth is the flat-rate month used for hourly prices
const HoursPerMonth = 730

// Hourly on-demand rates by instance type. Unknown types fall back to
// defaultInstanceHourly.
var instanceHourly = map[string]float64{
	"t2.micro":    0.0116,
	"t2.small":    0.023,
	"t2.medium":   0.0464,
	"t3.micro":    0.0104,
	"t3.small":    0.0208,
	"t3.medium":   0.0416,
	"t3.large":    0.0832,
	"m5.large":    0.096,
	"m5.xlarge":   0.192,
	"m5.2xlarge":  0.384,
	"c5.large":    0.085,
	"c5.xlarge":   0.17,
	"c5.2xlarge":  0.34,
	"r5.large":    0.126,
	"r5.xlarge":   0.252,
	"db.t3.micro": 0.017,
	"db.t3.small": 0.034,
	"db.m5.large": 0.171,
}

const defaultInstanceHourly = 0.10

// Per GB-month rates by volume type
var volumeGBMonth = map[string]float64{
	"gp2":      0.10,
	"gp3":      0.08,
	"io1":      0.125,
	"io2":      0.125,
	"st1":      0.045,
	"sc1":      0.015,
	"standard": 0.05,
}

const (
	defaultVolumeGBMonth = 0.10
	snapshotGBMonth      = 0.05
)

// MonthlyCost estimates a resource's monthly cost in USD. Unknown
// kinds cost zero rather than erroring; a missing price is not a
// collection failure.
func MonthlyCost(resource types.Resource) float64 {
	switch resource.Kind {
	case types.KindInstance, types.KindDatabase:
		return instanceMonthly(resource)
	case types.KindVolume:
		return volumeMonthly(resource)
	case types.KindSnapshot:
		return resource.PropertyFloat("size_gb") * snapshotGBMonth
	}
	return 0
}

func instanceMonthly(resource types.Resource) float64 {
	hourly, ok := instanceHourly[resource.PropertyString("instance_type")]
	if !ok {
		hourly = defaultInstanceHourly
	}
	return hourly * HoursPerMonth
}

func volumeMonthly(resource types.Resource) float64 {
	rate, ok := volumeGBMonth[resource.PropertyString("volume_type")]
	if !ok {
		rate = defaultVolumeGBMonth
	}
	return resource.PropertyFloat("size_gb") * rate
}
