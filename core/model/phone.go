package model

import "fmt"

// Point is a location on the sensing area.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// DistanceSquare returns the squared euclidean distance between p and q.
func (p Point) DistanceSquare(q Point) float64 {
	dx, dy := p.X-q.X, p.Y-q.Y
	return dx*dx + dy*dy
}

// Heading is the direction a phone is moving along the road grid.
type Heading int

const (
	HeadingUp Heading = iota
	HeadingRight
	HeadingDown
	HeadingLeft
)

// TurnLeft returns the heading after a left turn.
func (h Heading) TurnLeft() Heading { return (h + 3) % 4 }

// TurnRight returns the heading after a right turn.
func (h Heading) TurnRight() Heading { return (h + 1) % 4 }

// String returns a human-readable representation of the heading.
func (h Heading) String() string {
	switch h {
	case HeadingUp:
		return "up"
	case HeadingRight:
		return "right"
	case HeadingDown:
		return "down"
	case HeadingLeft:
		return "left"
	default:
		return "unknown"
	}
}

// CostProfile holds the per-unit rates a phone charges for each action and
// the amount of data it may upload per reporting period.
type CostProfile struct {
	SensingRate  float64 `json:"sensing_rate" yaml:"sensing_rate"`
	TransferRate float64 `json:"transfer_rate" yaml:"transfer_rate"`
	UploadRate   float64 `json:"upload_rate" yaml:"upload_rate"`
	UploadLimit  float64 `json:"upload_limit" yaml:"upload_limit"`
}

// Validate rejects negative rates and limits.
func (c CostProfile) Validate() error {
	if c.SensingRate < 0 || c.TransferRate < 0 || c.UploadRate < 0 {
		return fmt.Errorf("negative rate in cost profile %+v", c)
	}
	if c.UploadLimit < 0 {
		return fmt.Errorf("negative upload limit %v", c.UploadLimit)
	}
	return nil
}

// Phone is a mobile agent taking part in the sensing campaign.
type Phone struct {
	ID        int         `json:"id" yaml:"id"`
	StartTime int         `json:"start_time" yaml:"start_time"`
	Speed     float64     `json:"speed" yaml:"speed"`
	Costs     CostProfile `json:"costs" yaml:"costs"`
}

// PhoneState is the externally observed state of a phone at a window boundary.
type PhoneState struct {
	Location Point   `json:"location"`
	Heading  Heading `json:"heading"`
	Active   bool    `json:"active"`
}

// Profiles extracts the cost profiles of phones in index order.
func Profiles(phones []Phone) []CostProfile {
	out := make([]CostProfile, len(phones))
	for i, p := range phones {
		out[i] = p.Costs
	}
	return out
}
