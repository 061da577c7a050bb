package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dentalrpa/journalize/app/apptest"
	"github.com/dentalrpa/journalize/dashboard"
	"github.com/dentalrpa/journalize/process"
	dentalstorage "github.com/dentalrpa/journalize/subsystem/dental/storage"
	dentalinmem "github.com/dentalrpa/journalize/subsystem/dental/storage/inmem"
	statusinmem "github.com/dentalrpa/journalize/subsystem/status/storage/inmem"
)

type reportCall struct {
	step    string
	status  process.StepStatus
	failure error
	rerun   bool
}

// fakeReporter records step reports; runMeta is what the citizen's
// latest run carries (nil means no recorded run).
type fakeReporter struct {
	calls       []reportCall
	metaPatches int
	runMeta     map[string]string
	reportErr   error
}

func (r *fakeReporter) ReportStep(_ context.Context, _ *process.Context, step string, status process.StepStatus, failure error, rerun bool) error {
	r.calls = append(r.calls, reportCall{step, status, failure, rerun})
	return r.reportErr
}

func (r *fakeReporter) ReportRunMetadata(context.Context, *process.Item) error {
	r.metaPatches++
	return nil
}

func (r *fakeReporter) LatestRunMeta(context.Context, string) (map[string]string, error) {
	return r.runMeta, nil
}

func (r *fakeReporter) callsFor(step string) []reportCall {
	var out []reportCall
	for _, c := range r.calls {
		if c.step == step {
			out = append(out, c)
		}
	}
	return out
}

type fakeForms struct {
	err error
}

func (f *fakeForms) Download(_ context.Context, rctx *process.Context, dir, fileName string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(dir, fileName)
	rctx.Set(map[string]interface{}{process.KeyDocumentPath: path})
	return path, nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	var cfg Config
	cfg.ProcessName = "Journal request"
	cfg.Steps.Intake = "Form submitted"
	cfg.Steps.Journalize = "Form journalized"
	cfg.Steps.Contractor = "Clinic registered"
	cfg.Steps.Consent = "Consent"
	cfg.Document.Dir = filepath.Join(t.TempDir(), "documents")
	cfg.Document.FileName = "receipt.pdf"
	cfg.Document.Type = "Digital form"
	cfg.Note.Message = "Request for journal material via digital form. See documents."
	return cfg
}

type fixture struct {
	engine   *Engine
	app      *apptest.Fake
	reporter *fakeReporter
	status   *statusinmem.InMem
	dental   *dentalinmem.InMem
	cfg      Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		app:      apptest.New(),
		reporter: &fakeReporter{},
		status:   statusinmem.New(),
		dental:   dentalinmem.New(),
		cfg:      testConfig(t),
	}
	f.engine = New(f.cfg, f.app, f.reporter, f.status, f.dental, &fakeForms{})
	return f
}

func testItem() *process.Item {
	return &process.Item{
		Reference:      "F-1",
		NationalID:     "0101001234",
		URL:            "https://forms.example.org/doc/1",
		ClinicName:     "Smile A",
		ClinicPhone:    "11111111",
		ClinicProvider: "Y-100",
		Consent:        true,
		WorkItemID:     "wi-1",
	}
}

// seedMatchingClinic registers the item's clinic in the target system and
// records matching clinic data on the citizen's latest run.
func (f *fixture) seedMatchingClinic(item *process.Item) {
	f.dental.AddClinic(dentalstorage.Clinic{
		Name:         item.ClinicName,
		Phone:        item.ClinicPhone,
		ContractorID: item.ClinicProvider,
	})
	f.reporter.runMeta = map[string]string{
		dashboard.MetaClinicPhone:    item.ClinicPhone,
		dashboard.MetaClinicProvider: item.ClinicProvider,
	}
}

// wireCreates makes the fake app's create capabilities land records in
// the fake target system, like the real desktop app does.
func (f *fixture) wireCreates(item *process.Item) {
	f.app.OnCreateDoc = func(_, documentType, description string) {
		f.dental.AddDocument(item.NationalID, f.cfg.Document.FileName, documentType, description)
	}
	f.app.OnCreateNote = func(message string, _ bool) {
		f.dental.AddJournalNote(item.NationalID, message)
	}
}

func TestRunSuccess(t *testing.T) {
	f := newFixture(t)
	item := testItem()
	f.seedMatchingClinic(item)
	f.wireCreates(item)

	if err := f.engine.Run(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	status, err := f.status.RetrieveProcessStatus(context.Background(), item.Reference)
	if err != nil {
		t.Fatal(err)
	}
	if status != process.StatusSuccessful {
		t.Errorf("status %q", status)
	}

	meta, err := f.status.RetrieveResponseMetadata(context.Background(), item.Reference)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := meta[StepKeyDocument]["DocumentCreated"].(bool); !v {
		t.Errorf("document flag: %v", meta[StepKeyDocument])
	}
	if v, _ := meta[StepKeyJournalNote]["JournalNoteCreated"].(bool); !v {
		t.Errorf("note flag: %v", meta[StepKeyJournalNote])
	}

	for _, step := range []string{f.cfg.Steps.Intake, f.cfg.Steps.Journalize, f.cfg.Steps.Contractor, f.cfg.Steps.Consent} {
		calls := f.reporter.callsFor(step)
		if len(calls) < 1 || calls[len(calls)-1].status != process.StepSuccess {
			t.Errorf("step %q reports: %+v", step, calls)
		}
	}
	if f.reporter.metaPatches != 1 {
		t.Errorf("run metadata patches: %d", f.reporter.metaPatches)
	}

	calls := f.app.CallCounts()
	if calls.Close != 1 {
		t.Errorf("close calls: %d", calls.Close)
	}
	if calls.ChangeClinic != 0 {
		t.Errorf("unexpected clinic reassignment")
	}
}

func TestConsentDecisionTable(t *testing.T) {
	for _, tc := range []struct {
		name     string
		matches  bool
		consent  bool
		business bool
	}{
		{"match and consent", true, true, false},
		{"match without consent", true, false, false},
		{"no match with consent", false, true, true},
		{"no match without consent", false, false, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			item := testItem()
			item.Consent = tc.consent
			if tc.matches {
				f.reporter.runMeta = map[string]string{
					// whitespace and case variations still match
					dashboard.MetaClinicPhone: " " + item.ClinicPhone + " ",
				}
			}

			err := f.engine.checkConsent(context.Background(), newRunContext(item), item)
			if tc.business {
				if !process.IsBusiness(err) {
					t.Fatalf("expected business error, got %v", err)
				}
				calls := f.reporter.callsFor(f.cfg.Steps.Consent)
				last := calls[len(calls)-1]
				if last.status != process.StepFailed || !last.rerun {
					t.Errorf("failure report: %+v", last)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestClinicDataMatchNormalization(t *testing.T) {
	f := newFixture(t)
	item := testItem()
	item.ClinicProvider = "Y-1"
	item.ClinicPhone = "1234"

	for _, recorded := range []string{" 1234 ", "1234", "1234 "} {
		f.reporter.runMeta = map[string]string{dashboard.MetaClinicPhone: recorded}
		ok, err := f.engine.clinicDataMatches(context.Background(), item)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("%q did not match", recorded)
		}
	}
}

func TestContractorValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("zero matches", func(t *testing.T) {
		f := newFixture(t)
		item := testItem()
		err := f.engine.validateContractor(ctx, newRunContext(item), item)
		if !process.IsBusiness(err) {
			t.Fatalf("expected business error, got %v", err)
		}
		if !strings.Contains(err.Error(), "could not be matched") {
			t.Errorf("got %q", err.Error())
		}
	})

	t.Run("ambiguous matches", func(t *testing.T) {
		f := newFixture(t)
		item := testItem()
		f.dental.AddClinic(dentalstorage.Clinic{Name: "A", Phone: item.ClinicPhone, ContractorID: "Y-1"})
		f.dental.AddClinic(dentalstorage.Clinic{Name: "B", Phone: item.ClinicPhone, ContractorID: "Y-2"})
		err := f.engine.validateContractor(ctx, newRunContext(item), item)
		if !process.IsBusiness(err) {
			t.Fatalf("expected business error, got %v", err)
		}
		if !strings.Contains(err.Error(), "more than one clinic") {
			t.Errorf("got %q", err.Error())
		}
	})

	t.Run("same contractor assigned", func(t *testing.T) {
		f := newFixture(t)
		item := testItem()
		f.dental.AddClinic(dentalstorage.Clinic{Name: item.ClinicName, Phone: item.ClinicPhone, ContractorID: item.ClinicProvider})
		f.dental.SetExternDentists(item.NationalID, dentalstorage.ExternDentist{
			ContractorID: item.ClinicProvider,
			Phone:        item.ClinicPhone,
		})
		if err := f.engine.validateContractor(ctx, newRunContext(item), item); err != nil {
			t.Fatal(err)
		}
		if n := f.app.CallCounts().ChangeClinic; n != 0 {
			t.Errorf("reassignment calls: %d", n)
		}
	})

	t.Run("different contractor assigned", func(t *testing.T) {
		f := newFixture(t)
		item := testItem()
		f.dental.AddClinic(dentalstorage.Clinic{Name: item.ClinicName, Phone: item.ClinicPhone, ContractorID: item.ClinicProvider})
		f.dental.SetExternDentists(item.NationalID, dentalstorage.ExternDentist{
			ContractorID: "Y-999",
			Phone:        item.ClinicPhone,
		})
		if err := f.engine.validateContractor(ctx, newRunContext(item), item); err != nil {
			t.Fatal(err)
		}
		if n := f.app.CallCounts().ChangeClinic; n != 1 {
			t.Errorf("reassignment calls: %d", n)
		}
	})

	t.Run("no contractor assigned", func(t *testing.T) {
		f := newFixture(t)
		item := testItem()
		f.dental.AddClinic(dentalstorage.Clinic{Name: item.ClinicName, Phone: item.ClinicPhone, ContractorID: item.ClinicProvider})
		if err := f.engine.validateContractor(ctx, newRunContext(item), item); err != nil {
			t.Fatal(err)
		}
		if n := f.app.CallCounts().ChangeClinic; n != 0 {
			t.Errorf("reassignment calls: %d", n)
		}
	})
}

func TestDocumentIdempotent(t *testing.T) {
	f := newFixture(t)
	item := testItem()
	// the target system already holds the document
	f.dental.AddDocument(item.NationalID, f.cfg.Document.FileName, f.cfg.Document.Type, "journal request "+item.Reference)

	rctx := newRunContext(item)
	rctx.Set(map[string]interface{}{process.KeyDocumentPath: "/tmp/receipt.pdf"})

	if err := f.engine.journalizeDocument(context.Background(), rctx, item); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.journalizeDocument(context.Background(), rctx, item); err != nil {
		t.Fatal(err)
	}
	if n := f.app.CallCounts().CreateDoc; n != 0 {
		t.Errorf("create invoked %d times for pre-existing document", n)
	}

	meta, err := f.status.RetrieveResponseMetadata(context.Background(), item.Reference)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := meta[StepKeyDocument]["DocumentCreated"].(bool); !v {
		t.Errorf("document flag: %v", meta[StepKeyDocument])
	}
}

func TestDocumentCreateSilentlyFailed(t *testing.T) {
	f := newFixture(t)
	item := testItem()
	// create succeeds but the record never shows up in the target system
	rctx := newRunContext(item)
	rctx.Set(map[string]interface{}{process.KeyDocumentPath: "/tmp/receipt.pdf"})

	err := f.engine.journalizeDocument(context.Background(), rctx, item)
	if !errors.Is(err, ErrCreateNotObserved) {
		t.Fatalf("expected ErrCreateNotObserved, got %v", err)
	}
	if n := f.app.CallCounts().CreateDoc; n != 1 {
		t.Errorf("create calls: %d", n)
	}

	meta, merr := f.status.RetrieveResponseMetadata(context.Background(), item.Reference)
	if merr != nil {
		t.Fatal(merr)
	}
	if v, ok := meta[StepKeyDocument]["DocumentCreated"].(bool); !ok || v {
		t.Errorf("document flag: %v", meta[StepKeyDocument])
	}
	status, serr := f.status.RetrieveProcessStatus(context.Background(), item.Reference)
	if serr != nil {
		t.Fatal(serr)
	}
	if status != process.StatusFailed {
		t.Errorf("status %q", status)
	}
}

func TestDocumentFailureReportPropagates(t *testing.T) {
	f := newFixture(t)
	item := testItem()
	reportErr := errors.New("dashboard unavailable")
	f.reporter.reportErr = reportErr

	rctx := newRunContext(item)
	rctx.Set(map[string]interface{}{process.KeyDocumentPath: "/tmp/receipt.pdf"})

	// create silently fails, then the dashboard failure report fails
	// too; the report error wins, same as the checkpoints
	err := f.engine.journalizeDocument(context.Background(), rctx, item)
	if !errors.Is(err, reportErr) {
		t.Fatalf("expected report error on the chain, got %v", err)
	}
	if errors.Is(err, ErrCreateNotObserved) {
		t.Error("replaced step error still on the chain")
	}

	// the true-outcome flag and failed status were still recorded
	meta, merr := f.status.RetrieveResponseMetadata(context.Background(), item.Reference)
	if merr != nil {
		t.Fatal(merr)
	}
	if v, ok := meta[StepKeyDocument]["DocumentCreated"].(bool); !ok || v {
		t.Errorf("document flag: %v", meta[StepKeyDocument])
	}
}

func TestRunBareItemFailsAtContractor(t *testing.T) {
	f := newFixture(t)
	// no clinic identifiers, no consent, no clinics registered
	item := &process.Item{
		Reference:  "R1",
		NationalID: "0101001234",
		Consent:    false,
	}
	f.wireCreates(item)
	if err := os.MkdirAll(f.cfg.Document.Dir, 0o755); err != nil {
		t.Fatal(err)
	}

	err := f.engine.Run(context.Background(), item)
	if !process.IsBusiness(err) {
		t.Fatalf("expected business error, got %v", err)
	}
	if !strings.Contains(err.Error(), "could not be matched") {
		t.Errorf("got %q", err.Error())
	}

	status, serr := f.status.RetrieveProcessStatus(context.Background(), item.Reference)
	if serr != nil {
		t.Fatal(serr)
	}
	if status != process.StatusFailed {
		t.Errorf("status %q", status)
	}

	// cleanup and shutdown still executed
	if _, err := os.Stat(f.cfg.Document.Dir); !os.IsNotExist(err) {
		t.Errorf("document folder not cleaned up: %v", err)
	}
	if n := f.app.CallCounts().Close; n != 1 {
		t.Errorf("close calls: %d", n)
	}
}

func TestRunBusinessFailureEndToEnd(t *testing.T) {
	f := newFixture(t)
	// no prior dashboard run, no consent, no clinic identifiers
	item := &process.Item{
		Reference:  "R1",
		NationalID: "0101001234",
		Consent:    false,
		WorkItemID: "wi-1",
	}
	// let the pipeline reach the consent checkpoint
	f.dental.AddClinic(dentalstorage.Clinic{Name: "Smile A", Phone: "11111111", ContractorID: "Y-100"})
	item.ClinicPhone = "11111111"
	item.ClinicProvider = "Y-100"
	f.wireCreates(item)

	err := f.engine.Run(context.Background(), item)
	if !process.IsBusiness(err) {
		t.Fatalf("expected business error, got %v", err)
	}
	if !strings.Contains(err.Error(), "consent was not given") {
		t.Errorf("got %q", err.Error())
	}

	status, serr := f.status.RetrieveProcessStatus(context.Background(), item.Reference)
	if serr != nil {
		t.Fatal(serr)
	}
	if status != process.StatusFailed {
		t.Errorf("status %q", status)
	}

	// cleanup and application shutdown still executed, exactly once
	calls := f.app.CallCounts()
	if calls.Close != 1 {
		t.Errorf("close calls: %d", calls.Close)
	}

	failed := f.reporter.callsFor(f.cfg.Steps.Consent)
	last := failed[len(failed)-1]
	if last.status != process.StepFailed || !last.rerun {
		t.Errorf("consent failure report: %+v", last)
	}
}

type wedgedForms struct{}

func (wedgedForms) Download(context.Context, *process.Context, string, string) (string, error) {
	panic("ui automation wedged")
}

func TestRunShutdownOnPanic(t *testing.T) {
	fake := apptest.New()
	e := New(testConfig(t), fake, &fakeReporter{}, statusinmem.New(), dentalinmem.New(), wedgedForms{})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic to surface")
		}
		// teardown still ran before the panic reached the caller
		calls := fake.CallCounts()
		if calls.Close != 1 {
			t.Errorf("close calls: %d", calls.Close)
		}
	}()
	e.Run(context.Background(), testItem())
}

func TestRunProcessFaultIsOpaque(t *testing.T) {
	f := newFixture(t)
	item := testItem()
	cause := errors.New("ui element not found: patient search")
	f.app.ErrOpenPatient = cause

	err := f.engine.Run(context.Background(), item)
	if err == nil {
		t.Fatal("expected error")
	}
	if process.IsBusiness(err) {
		t.Error("system fault classified as business")
	}
	// opaque to the caller, cause kept on the chain
	if strings.Contains(err.Error(), "ui element") {
		t.Errorf("internals leaked: %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("cause missing from chain")
	}

	status, serr := f.status.RetrieveProcessStatus(context.Background(), item.Reference)
	if serr != nil {
		t.Fatal(serr)
	}
	if status != process.StatusFailed {
		t.Errorf("status %q", status)
	}
	if n := f.app.CallCounts().Close; n != 1 {
		t.Errorf("close calls: %d", n)
	}
}

func TestRunsSerialized(t *testing.T) {
	f := newFixture(t)
	item := testItem()
	f.seedMatchingClinic(item)
	f.wireCreates(item)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { done <- f.engine.Run(context.Background(), item) }()
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Error(err)
		}
	}
}
