package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/peerledger/internal/codec"
	"github.com/alfredjeanlab/peerledger/internal/events"
	"github.com/alfredjeanlab/peerledger/internal/index"
	"github.com/alfredjeanlab/peerledger/internal/ledger"
	"github.com/alfredjeanlab/peerledger/internal/ledger/memory"
	"github.com/alfredjeanlab/peerledger/internal/model"
)

type testSigner string

func (s testSigner) Account() string                 { return string(s) }
func (s testSigner) Scheme() string                  { return "test" }
func (s testSigner) PublicKey() []byte               { return []byte(s) }
func (s testSigner) Sign(msg []byte) ([]byte, error) { return msg, nil }

// reverseEncrypter is a stand-in primitive: it reverses the JSON-ish
// rendering of the payload so ciphertext never equals the comment.
type reverseEncrypter struct {
	err   error
	calls int
}

func (e *reverseEncrypter) Encrypt(_ context.Context, p model.Payload) (string, error) {
	e.calls++
	if e.err != nil {
		return "", e.err
	}
	plain := []rune(fmt.Sprintf("%s|%s|%s|%s", p.Reviewee, p.Category, p.ProjectID, p.Comment))
	slices.Reverse(plain)
	return "enc:" + string(plain), nil
}

// gatedWriter runs hooks around its n-th Get.
type gatedWriter struct {
	ledger.Writer
	gets      atomic.Int32
	beforeGet func(n int32)
	afterGet  func(n int32)
}

func (g *gatedWriter) Get(ctx context.Context, key string) ([]byte, error) {
	n := g.gets.Add(1)
	if g.beforeGet != nil {
		g.beforeGet(n)
	}
	b, err := g.Writer.Get(ctx, key)
	if g.afterGet != nil {
		g.afterGet(n)
	}
	return b, err
}

type fixture struct {
	mem   *memory.Ledger
	store *Store
	enc   *reverseEncrypter
	pub   *events.Recorder
}

func newFixture(t *testing.T, account string) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.New(), account, nil, index.Config{})
}

func newFixtureOn(t *testing.T, mem *memory.Ledger, account string, wrap func(ledger.Writer) ledger.Writer, idx index.Config) *fixture {
	t.Helper()
	var signer ledger.Signer
	if account != "" {
		signer = testSigner(account)
	}
	var w ledger.Writer = ledger.NewAuthenticated(mem, signer, ledger.Options{})
	if wrap != nil {
		w = wrap(w)
	}
	enc := &reverseEncrypter{}
	pub := &events.Recorder{}
	s := New(ledger.NewReadOnly(mem, ledger.Options{}), w, enc, pub, Config{
		Index: idx,
		Now:   func() time.Time { return time.Unix(1700000000, 0) },
	}, nil)
	return &fixture{mem: mem, store: s, enc: enc, pub: pub}
}

func validInput() model.CreateInput {
	return model.CreateInput{
		Reviewee:  "0xBB",
		Category:  model.CategoryTechnical,
		ProjectID: "P1",
		Comment:   "good work",
	}
}

func ids(records []*model.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestCreate_EndToEnd(t *testing.T) {
	f := newFixture(t, "0xAA")
	ctx := context.Background()

	rec, err := f.store.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Reviewer != "0xAA" || rec.CreatedAt != 1700000000 {
		t.Fatalf("Create returned %+v", rec)
	}

	list, err := f.store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListAll returned %d records, want 1", len(list))
	}
	got := list[0]
	if got.ID != rec.ID || got.Reviewee != "0xBB" || got.Category != model.CategoryTechnical || got.ProjectID != "P1" {
		t.Fatalf("listed record = %+v", got)
	}
	if got.Ciphertext == "good work" || strings.Contains(got.Ciphertext, "good work") {
		t.Fatalf("ciphertext %q exposes the comment", got.Ciphertext)
	}
	if !reflect.DeepEqual(got, rec) {
		t.Fatalf("listed %+v, created %+v", got, rec)
	}
	if topics := f.pub.Topics(); !reflect.DeepEqual(topics, []string{events.TopicRecordCreated}) {
		t.Fatalf("published %v", topics)
	}
}

func TestCreate_ReviewerIsSessionIdentity(t *testing.T) {
	f := newFixture(t, "0xCC")
	rec, err := f.store.Create(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	w, _ := f.mem.LastWrite(codec.RecordKey(rec.ID))
	if rec.Reviewer != "0xCC" || w.Writer != "0xCC" {
		t.Fatalf("reviewer = %q, ledger writer = %q", rec.Reviewer, w.Writer)
	}
}

func TestCreate_Monotonic(t *testing.T) {
	f := newFixture(t, "0xAA")
	ctx := context.Background()

	var created []string
	for i := range 4 {
		rec, err := f.store.Create(ctx, validInput())
		if err != nil {
			t.Fatalf("Create #%d: %v", i, err)
		}
		created = append(created, rec.ID)

		list, err := f.store.ListAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != i+1 {
			t.Fatalf("after %d creates ListAll has %d records", i+1, len(list))
		}
		got := ids(list)
		for _, id := range created {
			if !slices.Contains(got, id) {
				t.Fatalf("id %s missing from %v", id, got)
			}
		}
	}
}

func TestListAll_Idempotent(t *testing.T) {
	f := newFixture(t, "0xAA")
	ctx := context.Background()
	for range 3 {
		if _, err := f.store.Create(ctx, validInput()); err != nil {
			t.Fatal(err)
		}
	}
	first, err := f.store.ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.store.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	a, b := ids(first), ids(second)
	slices.Sort(a)
	slices.Sort(b)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("ListAll %v, Refresh %v", a, b)
	}
}

func TestListAll_SkipsBadRecords(t *testing.T) {
	f := newFixture(t, "0xAA")
	ctx := context.Background()
	good, err := f.store.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	f.mem.Raw(codec.RecordKey("corrupt"), []byte(`{"id":"corrupt","data":`))
	f.mem.Raw(index.DefaultKey, []byte(fmt.Sprintf(`["missing","corrupt",%q,%q]`, good.ID, good.ID)))

	list, err := f.store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if got := ids(list); !reflect.DeepEqual(got, []string{good.ID}) {
		t.Fatalf("ListAll = %v, want only %s", got, good.ID)
	}
}

func TestListAll_UnavailableIsEmpty(t *testing.T) {
	f := newFixture(t, "0xAA")
	ctx := context.Background()
	if _, err := f.store.Create(ctx, validInput()); err != nil {
		t.Fatal(err)
	}
	f.mem.SetAvailable(false)
	list, err := f.store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll while unavailable: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("ListAll while unavailable = %d records", len(list))
	}
}

func TestCreate_ValidationErrorWritesNothing(t *testing.T) {
	f := newFixture(t, "0xAA")
	in := validInput()
	in.Comment = "  "
	in.Category = "gossip"

	_, err := f.store.Create(context.Background(), in)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Create = %v, want *ValidationError", err)
	}
	if Classify(err) != FailureInput {
		t.Errorf("Classify = %v, want input", Classify(err))
	}
	if f.enc.calls != 0 {
		t.Error("encrypter called for invalid input")
	}
	if keys, _ := f.mem.Keys(context.Background(), ""); len(keys) != 0 {
		t.Fatalf("ledger written: %v", keys)
	}
}

func TestCreate_EncryptionErrorWritesNothing(t *testing.T) {
	f := newFixture(t, "0xAA")
	f.enc.err = errors.New("fhe backend down")

	_, err := f.store.Create(context.Background(), validInput())
	var ee *EncryptionError
	if !errors.As(err, &ee) {
		t.Fatalf("Create = %v, want *EncryptionError", err)
	}
	if keys, _ := f.mem.Keys(context.Background(), ""); len(keys) != 0 {
		t.Fatalf("ledger written: %v", keys)
	}
}

func TestCreate_NoSigner(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.store.Create(context.Background(), validInput())
	if !errors.Is(err, ledger.ErrNoSigner) {
		t.Fatalf("Create = %v, want ErrNoSigner", err)
	}
	if Classify(err) != FailureWallet {
		t.Errorf("Classify = %v, want wallet", Classify(err))
	}
	if f.enc.calls != 0 {
		t.Error("encrypter called without a signer")
	}
	if f.store.CanWrite() || f.store.Identity() != "" {
		t.Error("store without signer reports it can write")
	}
}

func TestCreate_RecordWriteUnavailable(t *testing.T) {
	f := newFixture(t, "0xAA")
	f.mem.SetAvailable(false)
	_, err := f.store.Create(context.Background(), validInput())
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("Create = %v, want ErrUnavailable", err)
	}
	if Classify(err) != FailureLedger {
		t.Errorf("Classify = %v, want ledger", Classify(err))
	}
	// Outcome unknown: the id is kept for the orphan scan.
	if len(f.store.Written()) != 1 {
		t.Fatalf("Written = %v", f.store.Written())
	}
	f.mem.SetAvailable(true)
	orphans, err := f.store.Orphans(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(orphans) != 0 {
		t.Fatalf("uncommitted write reported as orphan: %v", orphans)
	}
}

func TestGet(t *testing.T) {
	f := newFixture(t, "0xAA")
	ctx := context.Background()
	rec, err := f.store.Create(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	got, err := f.store.Get(ctx, rec.ID)
	if err != nil || !reflect.DeepEqual(got, rec) {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if _, err := f.store.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

// raceCreate makes A read the index, lets B create a record start to finish,
// then lets A write. B's id is dropped from the index.
func raceCreate(t *testing.T, maxAttempts int) (a, b *fixture, recA, recB *model.Record, errA error) {
	t.Helper()
	mem := memory.New()
	ctx := context.Background()

	aRead := make(chan struct{})
	bDone := make(chan struct{})
	a = newFixtureOn(t, mem, "0xAA", func(w ledger.Writer) ledger.Writer {
		return &gatedWriter{Writer: w, afterGet: func(n int32) {
			if n == 1 {
				close(aRead)
				<-bDone
			}
		}}
	}, index.Config{MaxAttempts: maxAttempts})
	b = newFixtureOn(t, mem, "0xBB", nil, index.Config{MaxAttempts: maxAttempts})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		recA, errA = a.store.Create(ctx, validInput())
	}()
	<-aRead
	var err error
	recB, err = b.store.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create B: %v", err)
	}
	close(bDone)
	wg.Wait()
	return a, b, recA, recB, errA
}

func TestRace_OrphanDetectedAndRepaired(t *testing.T) {
	a, b, recA, recB, errA := raceCreate(t, 1)
	ctx := context.Background()
	if errA != nil {
		t.Fatalf("Create A: %v", errA)
	}

	list, _ := b.store.ListAll(ctx)
	if got := ids(list); !reflect.DeepEqual(got, []string{recA.ID}) {
		t.Fatalf("ListAll = %v, want only A's record", got)
	}

	// B finds its own orphan from its write journal.
	orphans, err := b.store.Orphans(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(orphans, []string{recB.ID}) {
		t.Fatalf("B Orphans = %v, want [%s]", orphans, recB.ID)
	}
	// A finds it too, by listing record keys.
	orphans, err = a.store.Orphans(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(orphans, []string{recB.ID}) {
		t.Fatalf("A Orphans = %v, want [%s]", orphans, recB.ID)
	}
	if !slices.Contains(b.pub.Topics(), events.TopicRecordOrphaned) {
		t.Fatalf("no orphan event published: %v", b.pub.Topics())
	}

	repaired, err := b.store.Repair(ctx, orphans)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if !reflect.DeepEqual(repaired, []string{recB.ID}) {
		t.Fatalf("Repair = %v", repaired)
	}
	list, _ = a.store.ListAll(ctx)
	got := ids(list)
	slices.Sort(got)
	want := []string{recA.ID, recB.ID}
	slices.Sort(want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ListAll after repair = %v, want %v", got, want)
	}
	if orphans, _ := a.store.Orphans(ctx); len(orphans) != 0 {
		t.Fatalf("Orphans after repair = %v", orphans)
	}
}

func TestCreate_IndexAppendError(t *testing.T) {
	mem := memory.New()
	ctx := context.Background()

	// Every verification read sees an index that does not name the new id.
	f := newFixtureOn(t, mem, "0xAA", func(w ledger.Writer) ledger.Writer {
		return &gatedWriter{Writer: w, beforeGet: func(n int32) {
			if n%2 == 0 {
				mem.Raw(index.DefaultKey, []byte(`[]`))
			}
		}}
	}, index.Config{MaxAttempts: 2})

	rec, err := f.store.Create(ctx, validInput())
	var iae *IndexAppendError
	if !errors.As(err, &iae) {
		t.Fatalf("Create = %v, want *IndexAppendError", err)
	}
	if !errors.Is(err, index.ErrConflict) {
		t.Fatalf("Create = %v, want wrapped ErrConflict", err)
	}
	if rec == nil || iae.ID != rec.ID {
		t.Fatalf("record %+v, error id %q", rec, iae.ID)
	}
	if Classify(err) != FailureOrphaned {
		t.Errorf("Classify = %v, want orphaned", Classify(err))
	}
	if _, ok := mem.LastWrite(codec.RecordKey(rec.ID)); !ok {
		t.Fatal("record not durable")
	}
	conflicts := 0
	for _, topic := range f.pub.Topics() {
		if topic == events.TopicIndexConflict {
			conflicts++
		}
	}
	if conflicts != 2 {
		t.Fatalf("conflict events = %d, want 2 (%v)", conflicts, f.pub.Topics())
	}
}

func TestRepair_SkipsUnreadable(t *testing.T) {
	f := newFixture(t, "0xAA")
	f.mem.Raw(codec.RecordKey("bad"), []byte(`not json`))
	repaired, err := f.store.Repair(context.Background(), []string{"bad", "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(repaired) != 0 {
		t.Fatalf("Repair = %v, want none", repaired)
	}
	if _, ok := f.mem.LastWrite(index.DefaultKey); ok {
		t.Fatal("index written for unreadable records")
	}
}

func TestRepair_NoSigner(t *testing.T) {
	f := newFixture(t, "")
	if _, err := f.store.Repair(context.Background(), []string{"x"}); !errors.Is(err, ledger.ErrNoSigner) {
		t.Fatalf("Repair = %v, want ErrNoSigner", err)
	}
}

type rawEncrypter string

func (e rawEncrypter) Encrypt(context.Context, model.Payload) (string, error) { return string(e), nil }

func TestCreate_InvalidUTF8NeverStored(t *testing.T) {
	f := newFixture(t, "0xAA")
	ctx := context.Background()
	in := validInput()
	in.Reviewee = "bob\xff"

	_, err := f.store.Create(ctx, in)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Create = %v, want *ValidationError", err)
	}
	if keys, _ := f.mem.Keys(ctx, ""); len(keys) != 0 {
		t.Fatalf("ledger written: %v", keys)
	}

	// A valid UTF-8 record reads back exactly as Create returned it.
	in.Reviewee = "bøb 日本"
	rec, err := f.store.Create(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	list, err := f.store.ListAll(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListAll = %v, %v", list, err)
	}
	if !reflect.DeepEqual(list[0], rec) {
		t.Errorf("ListAll = %+v, Create returned %+v", list[0], rec)
	}
}

func TestCreate_BinaryCiphertextRejected(t *testing.T) {
	mem := memory.New()
	w := ledger.NewAuthenticated(mem, testSigner("0xAA"), ledger.Options{})
	s := New(ledger.NewReadOnly(mem, ledger.Options{}), w, rawEncrypter("\x00\xff\xfe raw"), nil, Config{}, nil)

	_, err := s.Create(context.Background(), validInput())
	var ee *EncryptionError
	if !errors.As(err, &ee) || !errors.Is(err, codec.ErrNotUTF8) {
		t.Fatalf("Create = %v, want *EncryptionError wrapping ErrNotUTF8", err)
	}
	if keys, _ := mem.Keys(context.Background(), ""); len(keys) != 0 {
		t.Fatalf("ledger written: %v", keys)
	}
}

func TestOrphans_UnavailableIsEmpty(t *testing.T) {
	f := newFixture(t, "0xAA")
	f.mem.SetAvailable(false)
	orphans, err := f.store.Orphans(context.Background())
	if err != nil {
		t.Fatalf("Orphans while unavailable: %v", err)
	}
	if orphans == nil || len(orphans) != 0 {
		t.Fatalf("Orphans while unavailable = %#v, want empty", orphans)
	}
}

func TestJournal_TrimmedOnceIndexed(t *testing.T) {
	f := newFixture(t, "0xAA")
	ctx := context.Background()
	for range 3 {
		if _, err := f.store.Create(ctx, validInput()); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(f.store.Written()); n != 3 {
		t.Fatalf("Written has %d ids, want 3", n)
	}
	if _, err := f.store.Orphans(ctx); err != nil {
		t.Fatal(err)
	}
	if w := f.store.Written(); len(w) != 0 {
		t.Fatalf("Written after scan = %v, want indexed ids dropped", w)
	}
}

func TestJournal_Capped(t *testing.T) {
	f := newFixture(t, "0xAA")
	for i := range journalLimit + 10 {
		f.store.remember(fmt.Sprintf("id-%d", i))
	}
	w := f.store.Written()
	if len(w) != journalLimit {
		t.Fatalf("journal holds %d ids, want %d", len(w), journalLimit)
	}
	if w[0] != "id-10" || w[len(w)-1] != fmt.Sprintf("id-%d", journalLimit+9) {
		t.Errorf("journal spans %s..%s", w[0], w[len(w)-1])
	}
}
