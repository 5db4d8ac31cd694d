package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Field is one named scalar of a record; array elements are named "name[i]".
type Field struct {
	Name  string
	Value float64
}

func indexed(name string, vs []float64) []Field {
	out := make([]Field, len(vs))
	for i, v := range vs {
		out[i] = Field{Name: fmt.Sprintf("%s[%d]", name, i), Value: v}
	}
	return out
}

// splitIndex turns "kParameters[1]" into ("kParameters", 1); plain names get -1.
func splitIndex(name string) (string, int, error) {
	open := strings.IndexByte(name, '[')
	if open < 0 {
		return name, -1, nil
	}
	if !strings.HasSuffix(name, "]") {
		return "", 0, fmt.Errorf("bad field name %q", name)
	}
	i, err := strconv.Atoi(name[open+1 : len(name)-1])
	if err != nil || i < 0 {
		return "", 0, fmt.Errorf("bad field index in %q", name)
	}
	return name[:open], i, nil
}

func setElem(dst []float64, name string, i int, v float64) error {
	if i < 0 || i >= len(dst) {
		return fmt.Errorf("%s has %d elements, index %d out of range", name, len(dst), i)
	}
	dst[i] = v
	return nil
}

// -------------------------- general settings --------------------------

// Fields lists the reported calibration values; the write flag is protocol-only.
func (g GeneralSettings) Fields() []Field {
	return []Field{
		{"yawOffset", g.YawOffset},
		{"AAROffset", g.AAROffset},
		{"controlInstabilityProtection", float64(g.ControlInstabilityProtection)},
		{"minVoltage", g.MinVoltage},
		{"maxVoltage", g.MaxVoltage},
		{"openLoopMaxSpeed", g.OpenLoopMaxSpeed},
		{"closedLoopMaxSpeed", g.ClosedLoopMaxSpeed},
		{"minPIDLimit", g.MinPIDLimit},
		{"maxPIDLimit", g.MaxPIDLimit},
	}
}

// Set assigns one field by its wire name.
func (g *GeneralSettings) Set(name string, v float64) error {
	switch name {
	case "yawOffset":
		g.YawOffset = v
	case "AAROffset":
		g.AAROffset = v
	case "controlInstabilityProtection":
		g.ControlInstabilityProtection = BitOf(v != 0)
	case "minVoltage":
		g.MinVoltage = v
	case "maxVoltage":
		g.MaxVoltage = v
	case "openLoopMaxSpeed":
		g.OpenLoopMaxSpeed = v
	case "closedLoopMaxSpeed":
		g.ClosedLoopMaxSpeed = v
	case "minPIDLimit":
		g.MinPIDLimit = v
	case "maxPIDLimit":
		g.MaxPIDLimit = v
	default:
		return fmt.Errorf("general settings has no field %q", name)
	}
	return nil
}

// -------------------------- control settings --------------------------

func (c ControlSettings) Fields() []Field {
	var fs []Field
	fs = append(fs, indexed("prefilterNumerator", c.PrefilterNumerator[:])...)
	fs = append(fs, indexed("prefilterDenominator", c.PrefilterDenominator[:])...)
	fs = append(fs, indexed("filter1Numerator", c.Filter1Numerator[:])...)
	fs = append(fs, indexed("filter1Denominator", c.Filter1Denominator[:])...)
	fs = append(fs, indexed("filter2Numerator", c.Filter2Numerator[:])...)
	fs = append(fs, Field{"filter2Denominator", c.Filter2Denominator})
	fs = append(fs, indexed("filter3Numerator", c.Filter3Numerator[:])...)
	fs = append(fs, Field{"filter3Denominator", c.Filter3Denominator})
	fs = append(fs, Field{"hysteresisCompensation", float64(c.HysteresisCompensation)})
	fs = append(fs, Field{"compensationOffset", c.CompensationOffset})
	fs = append(fs, indexed("quadraticParameters", c.QuadraticParameters[:])...)
	fs = append(fs, indexed("fParameters", c.FParameters[:])...)
	fs = append(fs, indexed("kParameters", c.KParameters[:])...)
	return fs
}

// Set assigns one field; array elements are addressed as "filter1Numerator[2]".
func (c *ControlSettings) Set(name string, v float64) error {
	base, i, err := splitIndex(name)
	if err != nil {
		return err
	}
	arrays := map[string][]float64{
		"prefilterNumerator":   c.PrefilterNumerator[:],
		"prefilterDenominator": c.PrefilterDenominator[:],
		"filter1Numerator":     c.Filter1Numerator[:],
		"filter1Denominator":   c.Filter1Denominator[:],
		"filter2Numerator":     c.Filter2Numerator[:],
		"filter3Numerator":     c.Filter3Numerator[:],
		"quadraticParameters":  c.QuadraticParameters[:],
		"fParameters":          c.FParameters[:],
		"kParameters":          c.KParameters[:],
	}
	if dst, ok := arrays[base]; ok {
		if i < 0 {
			return fmt.Errorf("%s is an array, use %s[i]", base, base)
		}
		return setElem(dst, base, i, v)
	}
	if i >= 0 {
		return fmt.Errorf("%s is not an array", base)
	}
	switch base {
	case "filter2Denominator":
		c.Filter2Denominator = v
	case "filter3Denominator":
		c.Filter3Denominator = v
	case "hysteresisCompensation":
		c.HysteresisCompensation = BitOf(v != 0)
	case "compensationOffset":
		c.CompensationOffset = v
	default:
		return fmt.Errorf("control settings has no field %q", name)
	}
	return nil
}
