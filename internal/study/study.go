// Package study holds the fixed domain knowledge of the auditory imagery
// experiment: cohort, tonalities, tasks, cortical regions and the chunk layout
// of heard and imagined runs.
package study

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
)

var (
	ErrUnknownSubject = errors.New("unknown subject")
	ErrUnknownTask    = errors.New("unknown task")
	ErrUnknownRegion  = errors.New("unknown region")
)

var subjectPattern = regexp.MustCompile(`^sid\d{6}$`)

type Subject string

type Key string

const (
	KeyE Key = "E"
	KeyF Key = "F"
)

// Tonic returns the raw label offset of the key's tonic.
func (k Key) Tonic() int {
	if k == KeyF {
		return 53
	}
	return 52
}

type Task string

const (
	TaskPitchHeight      Task = "pch-height"
	TaskPitchClass       Task = "pch-class"
	TaskPitchHiLo        Task = "pch-hilo"
	TaskTimbre           Task = "timbre"
	TaskStimulusEncoding Task = "pch-helix-stim-enc"
)

// Tasks returns every task in evaluation order.
func Tasks() []Task {
	return []Task{TaskPitchHeight, TaskPitchClass, TaskPitchHiLo, TaskTimbre, TaskStimulusEncoding}
}

func ParseTask(name string) (Task, error) {
	for _, t := range Tasks() {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTask, name)
}

// IsStimulusEncoding reports whether the task regresses voxels on the helix
// embedding instead of classifying trials.
func (t Task) IsStimulusEncoding() bool {
	return t == TaskStimulusEncoding
}

type Hemisphere string

const (
	Left  Hemisphere = "LH"
	Right Hemisphere = "RH"
)

func Hemispheres() []Hemisphere {
	return []Hemisphere{Left, Right}
}

// Offset is added to a left-hemisphere atlas label to address this hemisphere.
func (h Hemisphere) Offset() int {
	if h == Right {
		return 1000
	}
	return 0
}

type Condition string

const (
	Heard    Condition = "h"
	Imagined Condition = "i"
)

func Conditions() []Condition {
	return []Condition{Heard, Imagined}
}

// Chunks returns the runs acquired under the condition.
func (c Condition) Chunks() []int {
	if c == Imagined {
		return []int{3, 4, 7, 8}
	}
	return []int{1, 2, 5, 6}
}

func (c Condition) Contains(chunk int) bool {
	for _, v := range c.Chunks() {
		if v == chunk {
			return true
		}
	}
	return false
}

func (c Condition) Label() string {
	if c == Imagined {
		return "Imag"
	}
	return "Heard"
}

// Region is a left-hemisphere cortical atlas label (1000-1035).
type Region int

// Label returns the atlas label of the region in the given hemisphere.
func (r Region) Label(h Hemisphere) int {
	return int(r) + h.Offset()
}

// degenerateRegion (corpus callosum) resolves to no usable cortex.
const degenerateRegion Region = 1004

// Study is the immutable lookup surface built once per process.
type Study struct {
	subjects   []Subject
	accessions map[Subject]string
	keys       map[Subject]Key
	legend     RunLegend
	regions    []Region
	names      map[int]string
}

type cohortEntry struct {
	subject   Subject
	accession string
	key       Key
}

var cohort = []cohortEntry{
	// batch 1
	{"sid001401", "A002636", KeyE},
	{"sid000388", "A002655", KeyE},
	{"sid001415", "A002652", KeyE},
	{"sid001419", "A002659", KeyE},
	{"sid001410", "A002677", KeyE},
	// batch 2
	{"sid001541", "A002979", KeyF},
	{"sid001427", "A002996", KeyE},
	{"sid001088", "A003000", KeyF},
	{"sid001564", "A003037", KeyE},
	{"sid001581", "A003067", KeyF},
	{"sid001594", "A003098", KeyE},
}

// New builds the study tables. A nil legend means every subject ran in HT order.
func New(legend RunLegend) *Study {
	s := &Study{
		accessions: make(map[Subject]string, len(cohort)),
		keys:       make(map[Subject]Key, len(cohort)),
		legend:     legend.clone(),
		names:      make(map[int]string, 2*len(corticalNames)),
	}
	for _, entry := range cohort {
		s.subjects = append(s.subjects, entry.subject)
		s.accessions[entry.subject] = entry.accession
		s.keys[entry.subject] = entry.key
	}
	for i, name := range corticalNames {
		label := 1000 + i
		s.names[label] = "ctx-lh-" + name
		s.names[label+1000] = "ctx-rh-" + name
		if Region(label) != degenerateRegion {
			s.regions = append(s.regions, Region(label))
		}
	}
	return s
}

// Subjects returns the cohort in acquisition order.
func (s *Study) Subjects() []Subject {
	return append([]Subject(nil), s.subjects...)
}

func (s *Study) ParseSubject(id string) (Subject, error) {
	if !subjectPattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q does not match sid000000 pattern", ErrUnknownSubject, id)
	}
	if _, ok := s.accessions[Subject(id)]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSubject, id)
	}
	return Subject(id), nil
}

func (s *Study) Accession(subject Subject) (string, error) {
	acc, ok := s.accessions[subject]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSubject, subject)
	}
	return acc, nil
}

// Tonic returns the subject's tonic reference used by pitch encodings.
func (s *Study) Tonic(subject Subject) (int, error) {
	key, ok := s.keys[subject]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSubject, subject)
	}
	return key.Tonic(), nil
}

// Regions returns the 35 decodable cortical regions in label order.
func (s *Study) Regions() []Region {
	return append([]Region(nil), s.regions...)
}

func (s *Study) ParseRegion(label int) (Region, error) {
	for _, r := range s.regions {
		if int(r) == label {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %d", ErrUnknownRegion, label)
}

// RegionName returns the atlas name for a hemisphere-qualified label.
func (s *Study) RegionName(label int) string {
	if name, ok := s.names[label]; ok {
		return name
	}
	return fmt.Sprintf("label-%d", label)
}

// RegionLabels lists every named atlas label, both hemispheres.
func (s *Study) RegionLabels() []int {
	labels := make([]int, 0, len(s.names))
	for label := range s.names {
		labels = append(labels, label)
	}
	sort.Ints(labels)
	return labels
}

var swappedRuns = []int{2, 1, 4, 3, 6, 5, 8, 7}

// RunOrder maps chunk positions 1-8 to the acquired run numbers for a subject.
func (s *Study) RunOrder(subject Subject) ([]int, error) {
	acc, err := s.Accession(subject)
	if err != nil {
		return nil, err
	}
	order := make([]int, 8)
	ht := s.legend.FirstOrder(acc) == "" || s.legend.FirstOrder(acc) == "HT"
	for run := 1; run <= 8; run++ {
		if ht {
			order[run-1] = run
		} else {
			order[run-1] = swappedRuns[run-1]
		}
	}
	return order, nil
}

var corticalNames = []string{
	"unknown",
	"bankssts",
	"caudalanteriorcingulate",
	"caudalmiddlefrontal",
	"corpuscallosum",
	"cuneus",
	"entorhinal",
	"fusiform",
	"inferiorparietal",
	"inferiortemporal",
	"isthmuscingulate",
	"lateraloccipital",
	"lateralorbitofrontal",
	"lingual",
	"medialorbitofrontal",
	"middletemporal",
	"parahippocampal",
	"paracentral",
	"parsopercularis",
	"parsorbitalis",
	"parstriangularis",
	"pericalcarine",
	"postcentral",
	"posteriorcingulate",
	"precentral",
	"precuneus",
	"rostralanteriorcingulate",
	"rostralmiddlefrontal",
	"superiorfrontal",
	"superiorparietal",
	"superiortemporal",
	"supramarginal",
	"frontalpole",
	"temporalpole",
	"transversetemporal",
	"insula",
}
