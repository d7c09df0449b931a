package equipment

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Sub-score tiers.
const (
	scoreBaseline = 5
	scoreMid      = 7
	scoreHigh     = 9
	scoreTop      = 10
)

var (
	intelCorePattern = regexp.MustCompile(`(?i)\bi([357])[- ]?(\d{4,5})`)
	ryzenPattern     = regexp.MustCompile(`(?i)ryzen\s+([357])\s+(?:pro\s+)?(\d{4})`)
)

// Estimate derives a 0-10 performance score from the record's hardware.
// It averages the CPU, memory, storage and OS sub-scores, skipping categories
// with no data, and rounds to one decimal. A record with no scorable data
// yields 0.
func Estimate(r *Record) float64 {
	if r == nil {
		return 0
	}

	var total, count int
	add := func(score int, ok bool) {
		if ok {
			total += score
			count++
		}
	}

	add(cpuScore(r.Components))
	add(memoryScore(r.Components))
	add(storageScore(r.Disks))
	add(osScore(r.OSVersion))

	if count == 0 {
		return 0
	}
	return math.Round(float64(total)/float64(count)*10) / 10
}

func cpuScore(components []Component) (int, bool) {
	for _, c := range components {
		if !strings.EqualFold(c.Type, TypeProcessor) {
			continue
		}
		return cpuTier(c.Name), true
	}
	return 0, false
}

func cpuTier(name string) int {
	if m := intelCorePattern.FindStringSubmatch(name); m != nil {
		if intelGeneration(m[2]) >= 10 {
			switch m[1] {
			case "7":
				return scoreHigh
			case "5":
				return scoreMid
			}
		}
		return scoreBaseline
	}
	if m := ryzenPattern.FindStringSubmatch(name); m != nil {
		model, err := strconv.Atoi(m[2])
		if err != nil {
			return scoreBaseline
		}
		switch {
		case m[1] == "7" && model >= 7000:
			return scoreHigh
		case m[1] == "5" && model >= 5600:
			return scoreMid
		}
	}
	return scoreBaseline
}

// intelGeneration reads the generation from a Core model number:
// 12700 is 12th gen, 9700 is 9th gen. Four digit mobile parts starting
// with 1 (1065G7, 1260P) carry a two digit generation.
func intelGeneration(model string) int {
	digits := 1
	if len(model) == 5 || model[0] == '1' {
		digits = 2
	}
	gen, err := strconv.Atoi(model[:digits])
	if err != nil {
		return 0
	}
	return gen
}

func memoryScore(components []Component) (int, bool) {
	var total float64
	var found bool
	allDDR5, allDDR4 := true, true
	for _, c := range components {
		if c.Type != TypeMemory {
			continue
		}
		found = true
		total += c.Quantity
		kind := strings.ToUpper(strings.TrimSpace(c.Data))
		allDDR5 = allDDR5 && kind == "DDR5"
		allDDR4 = allDDR4 && kind == "DDR4"
	}
	if !found {
		return 0, false
	}
	switch {
	case total >= 16 && allDDR5:
		return scoreTop, true
	case total >= 8 && allDDR4:
		return scoreMid, true
	default:
		return scoreBaseline, true
	}
}

func storageScore(disks []Disk) (int, bool) {
	if len(disks) == 0 {
		return 0, false
	}
	for _, d := range disks {
		if strings.Contains(d.Name, "SSD") && d.Size >= 256 {
			return scoreMid, true
		}
	}
	return scoreBaseline, true
}

func osScore(version string) (int, bool) {
	if strings.TrimSpace(version) == "" {
		return 0, false
	}
	if strings.Contains(version, "Windows 10") || strings.Contains(version, "Windows 11") {
		return scoreHigh, true
	}
	return scoreBaseline, true
}
