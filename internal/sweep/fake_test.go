package sweep

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/korzen/mailsweep/internal/envelope"
	"github.com/korzen/mailsweep/internal/rules"
)

// fakeMessage is one message in a fakeSession folder.
type fakeMessage struct {
	uid   uint32
	env   envelope.Envelope
	body  []byte
	flags []string
}

// fakeSession is an in-memory Session with per-operation failure
// injection and operation counters.
type fakeSession struct {
	folders  map[string][]*fakeMessage
	selected string
	nextUID  uint32

	selectErr map[string]error
	envErr    map[uint32]error
	bodyErr   map[uint32]error
	flagsErr  map[uint32]error
	copyErr   map[uint32]error
	appendErr error
	listErr   error

	copies   int
	appends  int
	stores   int
	expunges int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		folders:   make(map[string][]*fakeMessage),
		nextUID:   1000,
		selectErr: make(map[string]error),
		envErr:    make(map[uint32]error),
		bodyErr:   make(map[uint32]error),
		flagsErr:  make(map[uint32]error),
		copyErr:   make(map[uint32]error),
	}
}

// addFolder creates an empty folder.
func (s *fakeSession) addFolder(name string) {
	if _, ok := s.folders[name]; !ok {
		s.folders[name] = nil
	}
}

// addMessage places a message in a folder and returns its UID.
func (s *fakeSession) addMessage(folder string, env envelope.Envelope, body []byte, flags ...string) uint32 {
	s.nextUID++
	s.folders[folder] = append(s.folders[folder], &fakeMessage{
		uid:   s.nextUID,
		env:   env,
		body:  body,
		flags: flags,
	})
	return s.nextUID
}

func (s *fakeSession) find(uid uint32) (*fakeMessage, error) {
	for _, m := range s.folders[s.selected] {
		if m.uid == uid {
			return m, nil
		}
	}
	return nil, fmt.Errorf("uid %d not in %s", uid, s.selected)
}

// routingOps counts mutations that a second, idempotent walk must not
// repeat.
func (s *fakeSession) routingOps() int {
	return s.copies + s.appends + s.stores
}

func (s *fakeSession) SelectFolder(ctx context.Context, folder string) error {
	if err := s.selectErr[folder]; err != nil {
		return err
	}
	if _, ok := s.folders[folder]; !ok {
		return fmt.Errorf("no such folder %s", folder)
	}
	s.selected = folder
	return nil
}

func (s *fakeSession) SearchAll(ctx context.Context) ([]uint32, error) {
	var uids []uint32
	for _, m := range s.folders[s.selected] {
		uids = append(uids, m.uid)
	}
	return uids, nil
}

func (s *fakeSession) FetchEnvelope(ctx context.Context, uid uint32) (envelope.Envelope, error) {
	if err := s.envErr[uid]; err != nil {
		return envelope.Envelope{}, err
	}
	m, err := s.find(uid)
	if err != nil {
		return envelope.Envelope{}, err
	}
	return m.env, nil
}

func (s *fakeSession) FetchFlags(ctx context.Context, uid uint32) ([]string, error) {
	if err := s.flagsErr[uid]; err != nil {
		return nil, err
	}
	m, err := s.find(uid)
	if err != nil {
		return nil, err
	}
	return slices.Clone(m.flags), nil
}

func (s *fakeSession) FetchBody(ctx context.Context, uid uint32) ([]byte, error) {
	if err := s.bodyErr[uid]; err != nil {
		return nil, err
	}
	m, err := s.find(uid)
	if err != nil {
		return nil, err
	}
	return m.body, nil
}

func (s *fakeSession) Copy(ctx context.Context, uid uint32, dest string) error {
	if err := s.copyErr[uid]; err != nil {
		return err
	}
	m, err := s.find(uid)
	if err != nil {
		return err
	}
	if _, ok := s.folders[dest]; !ok {
		return fmt.Errorf("no such folder %s", dest)
	}
	s.nextUID++
	s.folders[dest] = append(s.folders[dest], &fakeMessage{
		uid:   s.nextUID,
		env:   m.env,
		body:  m.body,
		flags: slices.Clone(m.flags),
	})
	s.copies++
	return nil
}

func (s *fakeSession) AddFlags(ctx context.Context, uids []uint32, flags ...string) error {
	for _, uid := range uids {
		m, err := s.find(uid)
		if err != nil {
			return err
		}
		for _, f := range flags {
			if !slices.Contains(m.flags, f) {
				m.flags = append(m.flags, f)
			}
		}
	}
	s.stores++
	return nil
}

func (s *fakeSession) Append(ctx context.Context, folder string, body []byte, flags ...string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	if _, ok := s.folders[folder]; !ok {
		return fmt.Errorf("no such folder %s", folder)
	}
	s.nextUID++
	s.folders[folder] = append(s.folders[folder], &fakeMessage{
		uid:   s.nextUID,
		body:  body,
		flags: slices.Clone(flags),
	})
	s.appends++
	return nil
}

func (s *fakeSession) Expunge(ctx context.Context) error {
	var kept []*fakeMessage
	for _, m := range s.folders[s.selected] {
		if !slices.Contains(m.flags, FlagDeleted) {
			kept = append(kept, m)
		}
	}
	s.folders[s.selected] = kept
	s.expunges++
	return nil
}

func (s *fakeSession) ListFolders(ctx context.Context, pattern string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var names []string
	for name := range s.folders {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// fakeSeen is an in-memory SeenStore with failure injection.
type fakeSeen struct {
	records   map[string]bool
	hasErr    error
	recordErr error
}

func newFakeSeen() *fakeSeen {
	return &fakeSeen{records: make(map[string]bool)}
}

func (f *fakeSeen) Has(fp string) (bool, error) {
	if f.hasErr != nil {
		return false, f.hasErr
	}
	return f.records[fp], nil
}

func (f *fakeSeen) Record(fp string) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records[fp] = true
	return nil
}

// fakeClassifier records training calls and returns canned verdicts.
type fakeClassifier struct {
	verdict  rules.Verdict
	scoreErr error
	trainErr error

	trained []rules.Label // labels, in call order
	scored  int
}

func (f *fakeClassifier) Train(ctx context.Context, body []byte, label rules.Label) error {
	if f.trainErr != nil {
		return f.trainErr
	}
	f.trained = append(f.trained, label)
	return nil
}

func (f *fakeClassifier) Score(ctx context.Context, body []byte) (rules.Verdict, error) {
	f.scored++
	if f.scoreErr != nil {
		return rules.VerdictPass, f.scoreErr
	}
	return f.verdict, nil
}
