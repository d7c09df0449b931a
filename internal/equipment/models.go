// Package equipment tracks office equipment inventory and presence: it merges
// agent inventory reports, estimates performance, records heartbeats and
// demotes devices that stop reporting.
package equipment

import (
	"time"
)

// UnknownInventoryNumber is the sentinel stored until an inventory number is assigned.
const UnknownInventoryNumber = "unknown"

// Component type tags with special merge or estimation semantics.
const (
	TypeDisk      = "Disk"
	TypeMemory    = "Memory"
	TypeProcessor = "Processor"
)

// IPAddress holds the primary and secondary addresses of a device.
type IPAddress struct {
	Main      string   `json:"main"`
	Secondary []string `json:"secondary,omitempty"`
}

// Printer describes the default printer attached to a device.
type Printer struct {
	Name      string `json:"name"`
	PortName  string `json:"portName,omitempty"`
	Default   bool   `json:"default"`
	IPAddress string `json:"ipAddress,omitempty"`
}

// Component is a hardware part such as a processor, memory bank or video card.
type Component struct {
	Type         string  `json:"type"`
	Name         string  `json:"name,omitempty"`
	Manufacturer string  `json:"manufacturer,omitempty"`
	Quantity     float64 `json:"quantity,omitempty"` // GB for memory
	Data         string  `json:"data,omitempty"`     // memory generation, e.g. DDR4
}

// Disk is a logical disk, sizes in GB.
type Disk struct {
	Name      string  `json:"name"`
	Size      float64 `json:"size"`
	FreeSpace float64 `json:"freeSpace"`
}

// Record is the stored state of one physical device, keyed by Name.
type Record struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Owner           string      `json:"owner,omitempty"`
	Department      string      `json:"department,omitempty"`
	Division        string      `json:"division,omitempty"`
	OSVersion       string      `json:"osVersion,omitempty"`
	IPAddress       IPAddress   `json:"ipAddress"`
	AnyDesk         string      `json:"anyDesk,omitempty"`
	TeamViewer      string      `json:"teamViewer,omitempty"`
	Printer         *Printer    `json:"printer,omitempty"`
	Components      []Component `json:"components"`
	Disks           []Disk      `json:"disks"`
	Online          bool        `json:"online"`
	LastUpdated     time.Time   `json:"lastUpdated"`
	InventoryNumber string      `json:"inventoryNumber"`
	Estimation      *float64    `json:"estimation,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.IPAddress.Secondary = append([]string(nil), r.IPAddress.Secondary...)
	c.Components = append([]Component(nil), r.Components...)
	c.Disks = append([]Disk(nil), r.Disks...)
	if r.Printer != nil {
		p := *r.Printer
		c.Printer = &p
	}
	if r.Estimation != nil {
		e := *r.Estimation
		c.Estimation = &e
	}
	return &c
}

// ReportItem is one entry of the flat components list sent by an agent.
// Disks arrive in the same list, tagged with Type "Disk".
type ReportItem struct {
	Type         string  `json:"type"`
	Name         string  `json:"name,omitempty"`
	Manufacturer string  `json:"manufacturer,omitempty"`
	Quantity     float64 `json:"quantity,omitempty"`
	Data         string  `json:"data,omitempty"`
	Size         float64 `json:"size,omitempty"`
	FreeSpace    float64 `json:"freeSpace,omitempty"`
}

// ReportIPAddress is the optional address block of a report.
type ReportIPAddress struct {
	Main      string   `json:"main,omitempty"`
	Secondary []string `json:"secondary,omitempty"`
}

// Report is a full inventory snapshot sent by a device agent.
type Report struct {
	Name            string           `json:"name"`
	Owner           string           `json:"owner,omitempty"`
	Department      string           `json:"department,omitempty"`
	Division        string           `json:"division,omitempty"`
	OSVersion       string           `json:"osVersion,omitempty"`
	IPAddress       *ReportIPAddress `json:"ipAddress,omitempty"`
	AnyDesk         string           `json:"anyDesk,omitempty"`
	TeamViewer      string           `json:"teamViewer,omitempty"`
	Printer         *Printer         `json:"printer,omitempty"`
	InventoryNumber string           `json:"inventoryNumber,omitempty"`
	Components      []ReportItem     `json:"components"`
}

// Heartbeat is the minimal liveness ping.
type Heartbeat struct {
	Name string `json:"name"`
}

// ListFilter narrows List results. Empty fields are ignored.
type ListFilter struct {
	Name            string
	Owner           string
	Department      string
	Division        string
	InventoryNumber string
	Online          *bool
}

// Matches reports whether the record satisfies every set field of the filter.
func (f *ListFilter) Matches(r *Record) bool {
	if f == nil {
		return true
	}
	if f.Name != "" && r.Name != f.Name {
		return false
	}
	if f.Owner != "" && r.Owner != f.Owner {
		return false
	}
	if f.Department != "" && r.Department != f.Department {
		return false
	}
	if f.Division != "" && r.Division != f.Division {
		return false
	}
	if f.InventoryNumber != "" && r.InventoryNumber != f.InventoryNumber {
		return false
	}
	if f.Online != nil && r.Online != *f.Online {
		return false
	}
	return true
}

// RecordPatch carries operator edits. Nil fields are left untouched.
type RecordPatch struct {
	Owner           *string `json:"owner,omitempty"`
	Department      *string `json:"department,omitempty"`
	Division        *string `json:"division,omitempty"`
	InventoryNumber *string `json:"inventoryNumber,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p *RecordPatch) Empty() bool {
	return p == nil || (p.Owner == nil && p.Department == nil && p.Division == nil && p.InventoryNumber == nil)
}
