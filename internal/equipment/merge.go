package equipment

import (
	"time"
)

// componentSet indexes components by merge identity while keeping their order.
type componentSet struct {
	items []Component
	index map[partKey]int
}

func newComponentSet(existing []Component) *componentSet {
	s := &componentSet{
		items: make([]Component, 0, len(existing)),
		index: make(map[partKey]int, len(existing)),
	}
	for _, c := range existing {
		s.put(c)
	}
	return s
}

// put updates the entry with the same identity or appends a new one. Only
// the fields the incoming component carries are overwritten.
func (s *componentSet) put(c Component) {
	k := componentKey(c)
	if i, ok := s.index[k]; ok {
		stored := &s.items[i]
		overwrite(&stored.Name, c.Name)
		overwrite(&stored.Manufacturer, c.Manufacturer)
		overwrite(&stored.Data, c.Data)
		if c.Quantity != 0 {
			stored.Quantity = c.Quantity
		}
		return
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, c)
}

type diskSet struct {
	items []Disk
	index map[string]int
}

func newDiskSet(existing []Disk) *diskSet {
	s := &diskSet{
		items: make([]Disk, 0, len(existing)),
		index: make(map[string]int, len(existing)),
	}
	for _, d := range existing {
		s.put(d)
	}
	return s
}

func (s *diskSet) put(d Disk) {
	if i, ok := s.index[d.Name]; ok {
		s.items[i].Size = d.Size
		s.items[i].FreeSpace = d.FreeSpace
		return
	}
	s.index[d.Name] = len(s.items)
	s.items = append(s.items, d)
}

// MergeReport folds a validated report into the existing record, which may be
// nil for a device that has never reported. The existing record is not
// modified. Descriptive fields keep their stored value and are only filled
// when empty; components and disks are updated in place by identity.
// Estimation is cleared: it must be recomputed from the merged hardware.
func MergeReport(existing *Record, r *Report, parts []Part, now time.Time) *Record {
	merged := existing.Clone()
	if merged == nil {
		merged = &Record{Name: r.Name}
	}

	components := newComponentSet(merged.Components)
	disks := newDiskSet(merged.Disks)
	for _, p := range parts {
		switch p := p.(type) {
		case DiskPart:
			disks.put(p.Disk)
		case MemoryPart:
			components.put(p.Component)
		case HardwarePart:
			components.put(p.Component)
		}
	}
	merged.Components = components.items
	merged.Disks = disks.items

	fill(&merged.Owner, r.Owner)
	fill(&merged.Department, r.Department)
	fill(&merged.Division, r.Division)
	fill(&merged.OSVersion, r.OSVersion)
	fill(&merged.AnyDesk, r.AnyDesk)
	fill(&merged.TeamViewer, r.TeamViewer)

	if merged.InventoryNumber == UnknownInventoryNumber {
		merged.InventoryNumber = ""
	}
	fill(&merged.InventoryNumber, r.InventoryNumber)
	if merged.InventoryNumber == "" {
		merged.InventoryNumber = UnknownInventoryNumber
	}

	if r.IPAddress != nil {
		fill(&merged.IPAddress.Main, r.IPAddress.Main)
		if len(merged.IPAddress.Secondary) == 0 && len(r.IPAddress.Secondary) > 0 {
			merged.IPAddress.Secondary = append([]string(nil), r.IPAddress.Secondary...)
		}
	}

	if merged.Printer == nil && r.Printer != nil {
		p := *r.Printer
		merged.Printer = &p
	}

	merged.Online = true
	merged.LastUpdated = now
	merged.Estimation = nil

	return merged
}

func overwrite(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func fill(dst *string, value string) {
	if *dst == "" && value != "" {
		*dst = value
	}
}
