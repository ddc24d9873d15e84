package nn

import (
	"fmt"
	"strings"

	"github.com/born-ml/sparseconv/internal/logger"
	"github.com/born-ml/sparseconv/internal/tensor"
)

// MaskSource selects the mask a masked convolution is decomposed with.
type MaskSource int

const (
	// StoredMask uses the mask last materialized by ForwardMasked or
	// MaterializeMask. Decompose fails with ErrNoStoredMask if there is none.
	StoredMask MaskSource = iota

	// RecomputeHardMask evaluates a fresh hard mask at temperature 1 and
	// leaves the stored mask untouched.
	RecomputeHardMask
)

// String returns the mask source name.
func (s MaskSource) String() string {
	switch s {
	case StoredMask:
		return "stored"
	case RecomputeHardMask:
		return "recompute-hard"
	default:
		return fmt.Sprintf("MaskSource(%d)", int(s))
	}
}

// ParseMaskSource parses "stored" or "recompute-hard".
func ParseMaskSource(s string) (MaskSource, error) {
	switch s {
	case "stored", "":
		return StoredMask, nil
	case "recompute-hard", "hard":
		return RecomputeHardMask, nil
	default:
		return 0, fmt.Errorf("unknown mask source %q", s)
	}
}

type decomposeOptions struct {
	maskSource MaskSource
	log        logger.Logger
}

// DecomposeOption configures Decompose.
type DecomposeOption func(*decomposeOptions)

// WithMaskSource selects the mask used for masked sources. Default StoredMask.
func WithMaskSource(s MaskSource) DecomposeOption {
	return func(o *decomposeOptions) {
		o.maskSource = s
	}
}

// WithLogger logs every emitted segment at debug level.
func WithLogger(l logger.Logger) DecomposeOption {
	return func(o *decomposeOptions) {
		o.log = l
	}
}

// ChannelRun is a maximal span [Start, End) of output channels sharing the
// same activity.
type ChannelRun struct {
	Start  int
	End    int
	Active bool
}

// Len returns the number of channels in the run.
func (r ChannelRun) Len() int {
	return r.End - r.Start
}

// String returns "[start, end) active" or "[start, end) zero".
func (r ChannelRun) String() string {
	state := "zero"
	if r.Active {
		state = "active"
	}
	return fmt.Sprintf("[%d, %d) %s", r.Start, r.End, state)
}

// ChannelActivity reports, per output channel (dimension 0), whether the sum
// of absolute weight values over all other dimensions is strictly positive.
func ChannelActivity[B tensor.Backend](weight *tensor.Tensor[float32, B]) []bool {
	shape := weight.Shape()
	if len(shape) == 0 {
		panic("channel activity: weight must have at least one dimension")
	}
	out := shape[0]
	magnitude := weight.Abs().Reshape(out, weight.NumElements()/out).SumDim(1, false)

	activity := make([]bool, out)
	for i, v := range magnitude.Data() {
		activity[i] = v > 0
	}
	return activity
}

// ChannelRuns splits activity into maximal runs. The runs are in ascending
// order, partition [0, len(activity)) and alternate in activity.
func ChannelRuns(activity []bool) []ChannelRun {
	var runs []ChannelRun
	for i, active := range activity {
		if n := len(runs); n > 0 && runs[n-1].Active == active {
			runs[n-1].End = i + 1
			continue
		}
		runs = append(runs, ChannelRun{Start: i, End: i + 1, Active: active})
	}
	return runs
}

// Segment is one entry of a decomposed convolution: either an
// *ActiveSegment or a *ZeroSegment.
type Segment[B tensor.Backend] interface {
	Module[B]

	// Tag returns the identifier, "conv<k>" or "zero<k>", counted per kind from 1.
	Tag() string

	// Run returns the source output channels this segment reproduces.
	Run() ChannelRun

	segment()
}

// ActiveSegment reproduces a run of active channels with a smaller convolution.
type ActiveSegment[B tensor.Backend] struct {
	tag  string
	run  ChannelRun
	conv *Conv2D[B]

	// Input channel window read by the sub-convolution. For grouped sources
	// this covers only the groups owning the run.
	inputStart    int
	inputChannels int
	sourceInputs  int
}

func (s *ActiveSegment[B]) segment() {}

// Tag returns the segment identifier.
func (s *ActiveSegment[B]) Tag() string { return s.tag }

// Run returns the source channel run.
func (s *ActiveSegment[B]) Run() ChannelRun { return s.run }

// Conv returns the sub-convolution.
func (s *ActiveSegment[B]) Conv() *Conv2D[B] { return s.conv }

// InputWindow returns the first input channel and the number of input
// channels the sub-convolution reads.
func (s *ActiveSegment[B]) InputWindow() (start, channels int) {
	return s.inputStart, s.inputChannels
}

// Forward runs the sub-convolution on its input channel window.
func (s *ActiveSegment[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if s.inputChannels != s.sourceInputs {
		input = input.Narrow(1, s.inputStart, s.inputChannels)
	}
	return s.conv.Forward(input)
}

// Parameters returns the sub-convolution parameters.
func (s *ActiveSegment[B]) Parameters() []*Parameter[B] { return s.conv.Parameters() }

// StateDict returns the sub-convolution state.
func (s *ActiveSegment[B]) StateDict() map[string]*tensor.RawTensor { return s.conv.StateDict() }

// LoadStateDict loads the sub-convolution state.
func (s *ActiveSegment[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return s.conv.LoadStateDict(stateDict)
}

// ZeroSegment reproduces a run of pruned channels with a ZeroConv.
type ZeroSegment[B tensor.Backend] struct {
	tag  string
	run  ChannelRun
	zero *ZeroConv[B]
}

func (s *ZeroSegment[B]) segment() {}

// Tag returns the segment identifier.
func (s *ZeroSegment[B]) Tag() string { return s.tag }

// Run returns the source channel run.
func (s *ZeroSegment[B]) Run() ChannelRun { return s.run }

// Zero returns the placeholder module.
func (s *ZeroSegment[B]) Zero() *ZeroConv[B] { return s.zero }

// Forward returns the zero output.
func (s *ZeroSegment[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return s.zero.Forward(input)
}

// Parameters returns nil.
func (s *ZeroSegment[B]) Parameters() []*Parameter[B] { return nil }

// StateDict returns an empty map.
func (s *ZeroSegment[B]) StateDict() map[string]*tensor.RawTensor { return s.zero.StateDict() }

// LoadStateDict ignores its input.
func (s *ZeroSegment[B]) LoadStateDict(map[string]*tensor.RawTensor) error { return nil }

// SparseConv is a convolution rewritten as an ordered list of segments.
// Forward runs every segment on the same input and concatenates the results
// along the channel dimension in list order.
type SparseConv[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	segments    []Segment[B]
}

// Forward performs the forward pass.
func (s *SparseConv[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	outputs := make([]*tensor.Tensor[float32, B], len(s.segments))
	for i, seg := range s.segments {
		outputs[i] = seg.Forward(input)
	}
	if len(outputs) == 1 {
		return outputs[0]
	}
	return tensor.Cat(outputs, 1)
}

// Parameters returns the parameters of every active segment in order.
func (s *SparseConv[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, seg := range s.segments {
		params = append(params, seg.Parameters()...)
	}
	return params
}

// StateDict returns segment state prefixed with the segment tag
// (e.g., "conv1.weight", "conv1.bias").
func (s *SparseConv[B]) StateDict() map[string]*tensor.RawTensor {
	state := make(map[string]*tensor.RawTensor)
	for _, seg := range s.segments {
		for name, raw := range seg.StateDict() {
			state[seg.Tag()+"."+name] = raw
		}
	}
	return state
}

// LoadStateDict loads tag-prefixed state into every segment.
func (s *SparseConv[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for _, seg := range s.segments {
		prefix := seg.Tag() + "."
		segState := make(map[string]*tensor.RawTensor)
		for key, raw := range stateDict {
			if name, ok := strings.CutPrefix(key, prefix); ok {
				segState[name] = raw
			}
		}
		if err := seg.LoadStateDict(segState); err != nil {
			return fmt.Errorf("segment %s: %w", seg.Tag(), err)
		}
	}
	return nil
}

// Segments returns the segments in channel order.
func (s *SparseConv[B]) Segments() []Segment[B] {
	return append([]Segment[B](nil), s.segments...)
}

// Runs returns the channel run of every segment in order.
func (s *SparseConv[B]) Runs() []ChannelRun {
	runs := make([]ChannelRun, len(s.segments))
	for i, seg := range s.segments {
		runs[i] = seg.Run()
	}
	return runs
}

// InChannels returns the number of input channels of the source.
func (s *SparseConv[B]) InChannels() int {
	return s.inChannels
}

// OutChannels returns the total number of output channels.
func (s *SparseConv[B]) OutChannels() int {
	return s.outChannels
}

// ActiveChannels returns the number of channels computed by convolutions.
func (s *SparseConv[B]) ActiveChannels() int {
	n := 0
	for _, seg := range s.segments {
		if r := seg.Run(); r.Active {
			n += r.Len()
		}
	}
	return n
}

// String returns a string representation of the layer.
func (s *SparseConv[B]) String() string {
	var sb strings.Builder
	sb.WriteString("SparseConv(\n")
	for _, seg := range s.segments {
		fmt.Fprintf(&sb, "  (%s): %v\n", seg.Tag(), seg)
	}
	sb.WriteString(")")
	return sb.String()
}

// String returns the sub-convolution representation.
func (s *ActiveSegment[B]) String() string { return s.conv.String() }

// String returns the placeholder representation.
func (s *ZeroSegment[B]) String() string { return s.zero.String() }

// decomposition is the frozen view of a source convolution.
type decomposition[B tensor.Backend] struct {
	spec    Conv2DSpec
	weight  *tensor.Tensor[float32, B] // effective weight, detached
	bias    *tensor.Tensor[float32, B] // detached, or nil
	backend B
}

// Decompose rewrites a *Conv2D or *SoftMaskedConv2D into a SparseConv.
//
// Output channels are classified active when their effective weight has a
// non-zero absolute sum. Each maximal active run becomes a Conv2D holding
// the matching weight (and bias) slice; each inactive run becomes a
// ZeroConv. The source is not modified.
//
// For grouped sources every run must start and end on a group boundary;
// otherwise ErrGroupBoundary is returned. Masked sources produce bias-free
// sub-convolutions with a single group.
func Decompose[B tensor.Backend](source Module[B], opts ...DecomposeOption) (*SparseConv[B], error) {
	o := decomposeOptions{maskSource: StoredMask, log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	src, err := freeze(source, o.maskSource)
	if err != nil {
		return nil, err
	}

	runs := ChannelRuns(ChannelActivity(src.weight))
	sparse := &SparseConv[B]{
		inChannels:  src.spec.InChannels,
		outChannels: src.spec.OutChannels,
		segments:    make([]Segment[B], 0, len(runs)),
	}

	var convs, zeros int
	for _, run := range runs {
		var seg Segment[B]
		if run.Active {
			convs++
			seg, err = src.activeSegment(fmt.Sprintf("conv%d", convs), run)
		} else {
			zeros++
			seg, err = src.zeroSegment(fmt.Sprintf("zero%d", zeros), run)
		}
		if err != nil {
			return nil, fmt.Errorf("decompose: %w", err)
		}
		o.log.Debug("segment emitted", "tag", seg.Tag(), "start", run.Start, "end", run.End, "channels", run.Len())
		sparse.segments = append(sparse.segments, seg)
	}

	o.log.Debug("decomposed convolution",
		"out_channels", sparse.outChannels,
		"active_channels", sparse.ActiveChannels(),
		"segments", len(sparse.segments))
	return sparse, nil
}

// freeze extracts geometry and detached effective weights from source.
func freeze[B tensor.Backend](source Module[B], maskSource MaskSource) (*decomposition[B], error) {
	switch src := source.(type) {
	case *Conv2D[B]:
		if src.spec.OutChannels == 0 || src.weight == nil {
			return nil, fmt.Errorf("decompose: %w", ErrEmptyConvolution)
		}
		d := &decomposition[B]{
			spec:    src.spec,
			weight:  src.weight.Tensor().Detach(),
			backend: src.backend,
		}
		if src.bias != nil {
			d.bias = src.bias.Tensor().Detach()
		}
		return d, nil

	case *SoftMaskedConv2D[B]:
		if src.outChannels == 0 || src.weight == nil {
			return nil, fmt.Errorf("decompose: %w", ErrEmptyConvolution)
		}
		var mask *tensor.Tensor[float32, B]
		switch maskSource {
		case StoredMask:
			if src.mask == nil {
				return nil, fmt.Errorf("decompose: %w", ErrNoStoredMask)
			}
			mask = src.mask.Detach()
		case RecomputeHardMask:
			mask = ComputeMask(src.maskWeight.Tensor().Detach(), 1, true, src.maskInitialValue)
		default:
			return nil, fmt.Errorf("decompose: unknown mask source %v", maskSource)
		}
		weight := src.weight.Tensor().Detach()
		if !weight.Shape().Equal(mask.Shape()) {
			return nil, fmt.Errorf("decompose: weight %v, mask %v: %w", weight.Shape(), mask.Shape(), ErrMaskShapeMismatch)
		}
		return &decomposition[B]{
			spec:    src.spec(),
			weight:  weight.Mul(mask),
			backend: src.backend,
		}, nil

	default:
		return nil, fmt.Errorf("decompose: %T: %w", source, ErrUnsupportedSource)
	}
}

func (d *decomposition[B]) activeSegment(tag string, run ChannelRun) (*ActiveSegment[B], error) {
	groups := d.spec.Groups
	inPerGroup := d.spec.InChannels / groups
	outPerGroup := d.spec.OutChannels / groups

	spec := d.spec
	spec.OutChannels = run.Len()
	spec.Bias = d.bias != nil
	inputStart := 0

	if groups > 1 {
		if run.Start%outPerGroup != 0 || run.End%outPerGroup != 0 {
			return nil, fmt.Errorf("%s: run %v with %d channels per group: %w", tag, run, outPerGroup, ErrGroupBoundary)
		}
		spec.Groups = run.Len() / outPerGroup
		spec.InChannels = spec.Groups * inPerGroup
		inputStart = run.Start / outPerGroup * inPerGroup
	}

	weight := d.weight.Narrow(0, run.Start, run.Len())
	var bias *tensor.Tensor[float32, B]
	if d.bias != nil {
		bias = d.bias.Narrow(0, run.Start, run.Len())
	}

	return &ActiveSegment[B]{
		tag:           tag,
		run:           run,
		conv:          newConv2DWith(spec, weight, bias, d.backend),
		inputStart:    inputStart,
		inputChannels: spec.InChannels,
		sourceInputs:  d.spec.InChannels,
	}, nil
}

func (d *decomposition[B]) zeroSegment(tag string, run ChannelRun) (*ZeroSegment[B], error) {
	if d.spec.Groups > 1 {
		outPerGroup := d.spec.OutChannels / d.spec.Groups
		if run.Start%outPerGroup != 0 || run.End%outPerGroup != 0 {
			return nil, fmt.Errorf("%s: run %v with %d channels per group: %w", tag, run, outPerGroup, ErrGroupBoundary)
		}
	}
	zero, err := NewZeroConv[B](run.Len(), d.spec.Kernel, d.spec.Padding, d.spec.Stride)
	if err != nil {
		return nil, err
	}
	return &ZeroSegment[B]{tag: tag, run: run, zero: zero}, nil
}
