package equipment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidReport is returned when an inventory report is malformed.
	ErrInvalidReport = errors.New("invalid inventory report")
	// ErrInvalidHeartbeat is returned when a heartbeat has no device name.
	ErrInvalidHeartbeat = errors.New("invalid heartbeat")
)

// Part is one validated entry of a report. It is a closed set:
// DiskPart, MemoryPart or HardwarePart.
type Part interface {
	key() partKey
}

// partKey is the merge identity of a part. For disks only name is set;
// memory uses manufacturer in place of name.
type partKey struct {
	disk  bool
	typ   string
	ident string
}

// DiskPart is a reported logical disk, matched by name.
type DiskPart struct {
	Disk Disk
}

func (p DiskPart) key() partKey { return partKey{disk: true, ident: p.Disk.Name} }

// MemoryPart is a reported memory bank, matched by manufacturer.
type MemoryPart struct {
	Component Component
}

func (p MemoryPart) key() partKey {
	return partKey{typ: TypeMemory, ident: p.Component.Manufacturer}
}

// HardwarePart is any other component, matched by type and name.
type HardwarePart struct {
	Component Component
}

func (p HardwarePart) key() partKey {
	return partKey{typ: strings.ToLower(p.Component.Type), ident: p.Component.Name}
}

func componentKey(c Component) partKey {
	if strings.EqualFold(c.Type, TypeMemory) {
		return MemoryPart{Component: c}.key()
	}
	return HardwarePart{Component: c}.key()
}

// ValidateReport checks the required fields of a report and splits its
// components into typed parts. On success the report name is trimmed so it
// keys the same record as the device's heartbeats. Nothing is mutated on error.
func ValidateReport(r *Report) ([]Part, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidReport)
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidReport)
	}
	if r.Components == nil {
		return nil, fmt.Errorf("%w: components is required", ErrInvalidReport)
	}
	parts, err := ParseParts(r.Components)
	if err != nil {
		return nil, err
	}
	r.Name = name
	return parts, nil
}

// ParseParts converts raw report items into typed parts.
func ParseParts(items []ReportItem) ([]Part, error) {
	parts := make([]Part, 0, len(items))
	for i, item := range items {
		typ := strings.TrimSpace(item.Type)
		switch {
		case typ == "":
			return nil, fmt.Errorf("%w: components[%d]: type is required", ErrInvalidReport, i)
		case strings.EqualFold(typ, TypeDisk):
			if item.Name == "" {
				return nil, fmt.Errorf("%w: components[%d]: disk name is required", ErrInvalidReport, i)
			}
			parts = append(parts, DiskPart{Disk: Disk{
				Name:      item.Name,
				Size:      item.Size,
				FreeSpace: item.FreeSpace,
			}})
		case strings.EqualFold(typ, TypeMemory):
			parts = append(parts, MemoryPart{Component: Component{
				Type:         TypeMemory,
				Name:         item.Name,
				Manufacturer: item.Manufacturer,
				Quantity:     item.Quantity,
				Data:         item.Data,
			}})
		default:
			if strings.EqualFold(typ, TypeProcessor) {
				typ = TypeProcessor
			}
			parts = append(parts, HardwarePart{Component: Component{
				Type:         typ,
				Name:         item.Name,
				Manufacturer: item.Manufacturer,
				Quantity:     item.Quantity,
				Data:         item.Data,
			}})
		}
	}
	return parts, nil
}

// ValidateHeartbeat checks a heartbeat body and returns the trimmed device name.
func ValidateHeartbeat(hb *Heartbeat) (string, error) {
	if hb == nil || strings.TrimSpace(hb.Name) == "" {
		return "", fmt.Errorf("%w: name is required", ErrInvalidHeartbeat)
	}
	return strings.TrimSpace(hb.Name), nil
}
