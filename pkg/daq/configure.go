package daq

import (
	"math"
	"reflect"
	"sort"

	"github.com/pkg/errors"

	"github.com/itohio/daqsim/pkg/device"
)

// SeqCtl is the sequencer control tuple: a sequencer name, a value and an
// optional trailing argument.
type SeqCtl struct {
	Name  string
	Value int
	Extra *string
}

// Settings is the full configurable state of the simulator.
type Settings struct {
	Motors       []any
	GroupMask    int
	Events       int
	Record       bool
	DetName      string
	ScanType     string
	SerialNumber string
	AlgName      string
	AlgVersion   []any
	SeqCtl       *SeqCtl
}

// DefaultSettings returns the power-on configuration.
func DefaultSettings() Settings {
	return Settings{
		Motors:       []any{},
		GroupMask:    1,
		Events:       1,
		Record:       false,
		DetName:      "scan",
		ScanType:     "scan",
		SerialNumber: "1234",
		AlgName:      "raw",
		AlgVersion:   []any{1, 0, 0},
	}
}

func (s Settings) clone() Settings {
	c := s
	c.Motors = append([]any(nil), s.Motors...)
	c.AlgVersion = append([]any(nil), s.AlgVersion...)
	if s.SeqCtl != nil {
		sc := *s.SeqCtl
		c.SeqCtl = &sc
	}
	return c
}

// Options is a partial configuration update. Nil fields are left unchanged;
// a non-nil empty slice replaces the current value with an empty one.
// SeqCtl is the exception: every update clears it unless it is supplied.
type Options struct {
	Motors       []any
	GroupMask    *int
	Events       *int
	Record       *bool
	DetName      *string
	ScanType     *string
	SerialNumber *string
	AlgName      *string
	AlgVersion   []any
	SeqCtl       *SeqCtl
}

// Field names accepted by Configure.
const (
	FieldMotors       = "motors"
	FieldGroupMask    = "group_mask"
	FieldEvents       = "events"
	FieldRecord       = "record"
	FieldDetName      = "detname"
	FieldScanType     = "scantype"
	FieldSerialNumber = "serial_number"
	FieldAlgName      = "alg_name"
	FieldAlgVersion   = "alg_version"
	FieldSeqCtl       = "seq_ctl"
)

// fieldDecoder validates one raw value and stores it in the options.
type fieldDecoder struct {
	name   string
	decode func(v any, o *Options) error
}

// fieldDecoders run in this order; the first failure stops decoding.
var fieldDecoders = []fieldDecoder{
	{FieldMotors, func(v any, o *Options) error {
		seq, err := asSequence(FieldMotors, v)
		o.Motors = seq
		return err
	}},
	{FieldGroupMask, func(v any, o *Options) error {
		n, err := asInt(FieldGroupMask, v)
		o.GroupMask = n
		return err
	}},
	{FieldEvents, func(v any, o *Options) error {
		n, err := asInt(FieldEvents, v)
		o.Events = n
		return err
	}},
	{FieldRecord, func(v any, o *Options) error {
		b, ok := v.(bool)
		if !ok {
			return &FieldError{Field: FieldRecord, Expected: "bool", Got: v}
		}
		o.Record = &b
		return nil
	}},
	{FieldDetName, func(v any, o *Options) error {
		s, err := asString(FieldDetName, v)
		o.DetName = s
		return err
	}},
	{FieldScanType, func(v any, o *Options) error {
		s, err := asString(FieldScanType, v)
		o.ScanType = s
		return err
	}},
	{FieldSerialNumber, func(v any, o *Options) error {
		s, err := asString(FieldSerialNumber, v)
		o.SerialNumber = s
		return err
	}},
	{FieldAlgName, func(v any, o *Options) error {
		s, err := asString(FieldAlgName, v)
		o.AlgName = s
		return err
	}},
	{FieldAlgVersion, func(v any, o *Options) error {
		seq, err := asSequence(FieldAlgVersion, v)
		o.AlgVersion = seq
		return err
	}},
	{FieldSeqCtl, func(v any, o *Options) error {
		sc, err := asSeqCtl(v)
		o.SeqCtl = sc
		return err
	}},
}

// decodeFields converts raw fields into Options. On failure the returned
// Options hold every field decoded before the failing one.
func decodeFields(fields device.Fields) (Options, string, error) {
	var opts Options
	for _, fd := range fieldDecoders {
		v, ok := fields[fd.name]
		if !ok || v == nil {
			continue
		}
		if err := fd.decode(v, &opts); err != nil {
			return opts, fd.name, err
		}
	}
	return opts, "", nil
}

// checkKnown rejects keys Configure does not understand.
func checkKnown(fields device.Fields) error {
	var unknown []string
	for k := range fields {
		known := false
		for _, fd := range fieldDecoders {
			if fd.name == k {
				known = true
				break
			}
		}
		if !known {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return errors.Wrapf(ErrUnknownField, "%v", unknown)
}

// applyTo merges o into s. seqCtl reports whether the seq_ctl reset runs.
func (o Options) applyTo(s *Settings, seqCtl bool) {
	if o.Motors != nil {
		s.Motors = append([]any{}, o.Motors...)
	}
	if o.GroupMask != nil {
		s.GroupMask = *o.GroupMask
	}
	if o.Events != nil {
		s.Events = *o.Events
	}
	if o.Record != nil {
		s.Record = *o.Record
	}
	if o.DetName != nil {
		s.DetName = *o.DetName
	}
	if o.ScanType != nil {
		s.ScanType = *o.ScanType
	}
	if o.SerialNumber != nil {
		s.SerialNumber = *o.SerialNumber
	}
	if o.AlgName != nil {
		s.AlgName = *o.AlgName
	}
	if o.AlgVersion != nil {
		s.AlgVersion = append([]any{}, o.AlgVersion...)
	}
	if seqCtl {
		s.SeqCtl = nil
		if o.SeqCtl != nil {
			sc := *o.SeqCtl
			s.SeqCtl = &sc
		}
	}
}

func asInt(field string, v any) (*int, error) {
	rv := reflect.ValueOf(v)
	var n int
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := rv.Int()
		if i > math.MaxInt || i < math.MinInt {
			return nil, &FieldError{Field: field, Expected: "int", Got: v}
		}
		n = int(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt {
			return nil, &FieldError{Field: field, Expected: "int", Got: v}
		}
		n = int(u)
	default:
		return nil, &FieldError{Field: field, Expected: "int", Got: v}
	}
	return &n, nil
}

func asString(field string, v any) (*string, error) {
	s, ok := v.(string)
	if !ok {
		return nil, &FieldError{Field: field, Expected: "string", Got: v}
	}
	return &s, nil
}

func asSequence(field string, v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, &FieldError{Field: field, Expected: "list", Got: v}
	}
	seq := make([]any, rv.Len())
	for i := range seq {
		seq[i] = rv.Index(i).Interface()
	}
	return seq, nil
}

func asSeqCtl(v any) (*SeqCtl, error) {
	switch sc := v.(type) {
	case SeqCtl:
		return &sc, nil
	case *SeqCtl:
		if sc == nil {
			return nil, nil
		}
		c := *sc
		return &c, nil
	}

	seq, err := asSequence(FieldSeqCtl, v)
	if err != nil {
		return nil, err
	}
	if len(seq) < 2 || len(seq) > 3 {
		return nil, &FieldError{Field: FieldSeqCtl, Expected: "list of [str, int, optional str]", Got: v}
	}
	name, ok := seq[0].(string)
	if !ok {
		return nil, &FieldError{Field: FieldSeqCtl + "[0]", Expected: "string", Got: seq[0]}
	}
	value, err := asInt(FieldSeqCtl+"[1]", seq[1])
	if err != nil {
		return nil, err
	}
	sc := &SeqCtl{Name: name, Value: *value}
	if len(seq) == 3 {
		extra, ok := seq[2].(string)
		if !ok {
			return nil, &FieldError{Field: FieldSeqCtl + "[2]", Expected: "string", Got: seq[2]}
		}
		sc.Extra = &extra
	}
	return sc, nil
}
