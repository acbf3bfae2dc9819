package types

import (
	"encoding/json"
	"fmt"
)

// SectionResult is a validated, generated document section.
// The set of implementations is closed: one variant per SectionType.
type SectionResult interface {
	SectionType() SectionType
	isSectionResult()
}

// ExploreSection is the diagnosis/hook section that opens the unit
type ExploreSection struct {
	LessonsList           Text     `json:"lessonsList"`
	UnitOverview          Text     `json:"unitOverview"`
	HookedActivities      Text     `json:"hookedActivities"`
	MapOfConceptualChange Text     `json:"mapOfConceptualChange"`
	EssentialQuestions    TextList `json:"essentialQuestions"`
}

// CompetencyFields are shared by every competency-driven section
type CompetencyFields struct {
	Code              string   `json:"code"`
	Competency        Text     `json:"competency"`
	LearningTargets   TextList `json:"learningTargets"`
	SuccessIndicators TextList `json:"successIndicators"`
	InPersonActivity  Activity `json:"inPersonActivity"`
	OnlineActivity    Activity `json:"onlineActivity"`
}

// FirmUpSection covers one Acquisition competency
type FirmUpSection struct {
	CompetencyFields
	SupportDiscussion Text       `json:"supportDiscussion"`
	Assessment        Assessment `json:"assessment"`
	Templates         Text       `json:"templates"`
}

// DeepenSection covers one Meaning-Making competency
type DeepenSection struct {
	CompetencyFields
	SupportDiscussion Text       `json:"supportDiscussion"`
	Assessment        Assessment `json:"assessment"`
	Templates         Text       `json:"templates"`
}

// TransferSection covers one Transfer competency
type TransferSection struct {
	CompetencyFields
}

// SynthesisSection closes the unit with its essential understanding
type SynthesisSection struct {
	Summary Text `json:"summary"`
}

// PerformanceTaskSection is the unit's GRASPS performance task
type PerformanceTaskSection struct {
	GraspsTask GraspsTask `json:"graspsTask"`
	Rubric     Rubric     `json:"rubric"`
}

// ValuesSection integrates the core values
type ValuesSection struct {
	Values CoreValues `json:"values"`
}

func (ExploreSection) SectionType() SectionType         { return SectionExplore }
func (FirmUpSection) SectionType() SectionType          { return SectionFirmUp }
func (DeepenSection) SectionType() SectionType          { return SectionDeepen }
func (TransferSection) SectionType() SectionType        { return SectionTransfer }
func (SynthesisSection) SectionType() SectionType       { return SectionSynthesis }
func (PerformanceTaskSection) SectionType() SectionType { return SectionPerformanceTask }
func (ValuesSection) SectionType() SectionType          { return SectionValues }

func (ExploreSection) isSectionResult()         {}
func (FirmUpSection) isSectionResult()          {}
func (DeepenSection) isSectionResult()          {}
func (TransferSection) isSectionResult()        {}
func (SynthesisSection) isSectionResult()       {}
func (PerformanceTaskSection) isSectionResult() {}
func (ValuesSection) isSectionResult()          {}

// ValueOf returns r with a pointer variant replaced by the value it points to.
// A nil pointer yields nil.
func ValueOf(r SectionResult) SectionResult {
	switch s := r.(type) {
	case *ExploreSection:
		return deref(s)
	case *FirmUpSection:
		return deref(s)
	case *DeepenSection:
		return deref(s)
	case *TransferSection:
		return deref(s)
	case *SynthesisSection:
		return deref(s)
	case *PerformanceTaskSection:
		return deref(s)
	case *ValuesSection:
		return deref(s)
	default:
		return r
	}
}

func deref[T SectionResult](p *T) SectionResult {
	if p == nil {
		return nil
	}
	return *p
}

// CompetencyOf returns the competency fields of a competency-driven section
func CompetencyOf(r SectionResult) (CompetencyFields, bool) {
	switch s := ValueOf(r).(type) {
	case FirmUpSection:
		return s.CompetencyFields, true
	case DeepenSection:
		return s.CompetencyFields, true
	case TransferSection:
		return s.CompetencyFields, true
	default:
		return CompetencyFields{}, false
	}
}

// DecodeError reports a payload that could not be decoded into its variant
type DecodeError struct {
	Section SectionType
	Cause   error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot decode %s section: %v", e.Section, e.Cause)
	}
	return fmt.Sprintf("cannot decode %s section", e.Section)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// DecodeSection builds the typed variant for t from a JSON object.
// Either a complete variant is returned or an error; never a partial value.
func DecodeSection(t SectionType, data []byte) (SectionResult, error) {
	var (
		result SectionResult
		err    error
	)
	switch t {
	case SectionExplore:
		var s ExploreSection
		err = json.Unmarshal(data, &s)
		result = s
	case SectionFirmUp:
		var s FirmUpSection
		err = json.Unmarshal(data, &s)
		result = s
	case SectionDeepen:
		var s DeepenSection
		err = json.Unmarshal(data, &s)
		result = s
	case SectionTransfer:
		var s TransferSection
		err = json.Unmarshal(data, &s)
		result = s
	case SectionSynthesis:
		var s SynthesisSection
		err = json.Unmarshal(data, &s)
		result = s
	case SectionPerformanceTask:
		var s PerformanceTaskSection
		err = json.Unmarshal(data, &s)
		result = s
	case SectionValues:
		var s ValuesSection
		err = json.Unmarshal(data, &s)
		result = s
	default:
		return nil, &DecodeError{Section: t, Cause: fmt.Errorf("unknown section type %q", t)}
	}
	if err != nil {
		return nil, &DecodeError{Section: t, Cause: err}
	}
	return result, nil
}

// DecodeSectionObject is DecodeSection for an already-parsed JSON object
func DecodeSectionObject(t SectionType, obj map[string]any) (SectionResult, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, &DecodeError{Section: t, Cause: err}
	}
	return DecodeSection(t, data)
}

// sectionEnvelope is the persisted form of a SectionResult
type sectionEnvelope struct {
	Type SectionType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SectionList is an ordered list of results that survives a JSON round trip
type SectionList []SectionResult

// MarshalJSON implements json.Marshaler
func (l SectionList) MarshalJSON() ([]byte, error) {
	envelopes := make([]sectionEnvelope, 0, len(l))
	for _, r := range l {
		data, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, sectionEnvelope{Type: r.SectionType(), Data: data})
	}
	return json.Marshal(envelopes)
}

// UnmarshalJSON implements json.Unmarshaler
func (l *SectionList) UnmarshalJSON(data []byte) error {
	var envelopes []sectionEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return err
	}
	out := make(SectionList, 0, len(envelopes))
	for i, env := range envelopes {
		r, err := DecodeSection(env.Type, env.Data)
		if err != nil {
			return fmt.Errorf("section %d: %w", i, err)
		}
		out = append(out, r)
	}
	*l = out
	return nil
}
