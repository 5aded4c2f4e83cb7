package appointment

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicslot/clinicslot/internal/auth"
	redisclient "github.com/clinicslot/clinicslot/internal/redis"
	"github.com/clinicslot/clinicslot/internal/schedule"
)

// 2024-06-03 is a Monday.
const (
	monday = "2024-06-03"
	sunday = "2024-06-09"
)

type fixture struct {
	svc     *Service
	repo    *MemoryRepository
	doctor  auth.Principal
	patient auth.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, NewMemoryRepository())
}

func newFixtureWithRepo(t *testing.T, repo *MemoryRepository) *fixture {
	t.Helper()
	ctx := context.Background()

	doc := &Doctor{
		Name:            "Dr. Ada Grey",
		VerifiedByAdmin: true,
		Template:        schedule.MustWeeklyTemplate(map[string][]string{"monday": {"09:00-10:00"}}),
		Settings:        schedule.DefaultSettings(),
	}
	if err := repo.CreateDoctor(ctx, doc); err != nil {
		t.Fatalf("CreateDoctor: %v", err)
	}

	return &fixture{
		svc:     NewService(repo, redisclient.NopLocker{}, zerolog.Nop()),
		repo:    repo,
		doctor:  auth.Principal{ID: doc.ID, Role: auth.RoleDoctor},
		patient: newPatient(t, repo),
	}
}

func newPatient(t *testing.T, repo *MemoryRepository) auth.Principal {
	t.Helper()
	p := &Patient{Name: "Pat " + uuid.NewString()[:8]}
	if err := repo.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("CreatePatient: %v", err)
	}
	return auth.Principal{ID: p.ID, Role: auth.RolePatient}
}

func (f *fixture) book(t *testing.T, patient auth.Principal, date, at string) *Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), patient, BookRequest{
		DoctorID: f.doctor.ID,
		Date:     date,
		Time:     at,
		Reason:   "checkup",
	})
	if err != nil {
		t.Fatalf("Book(%s %s): %v", date, at, err)
	}
	return appt
}

func (f *fixture) slots(t *testing.T, date string) []string {
	t.Helper()
	listing, err := f.svc.ListSlots(context.Background(), f.doctor.ID, date)
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	return schedule.FormatClockTimes(listing.Slots)
}

func TestBook_ThenListing(t *testing.T) {
	f := newFixture(t)

	if got, want := f.slots(t, monday), []string{"09:00", "09:15", "09:30", "09:45"}; !slices.Equal(got, want) {
		t.Fatalf("before booking: got %v, want %v", got, want)
	}

	appt := f.book(t, f.patient, monday, "09:00")
	if appt.Status != StatusScheduled {
		t.Errorf("status = %q, want scheduled", appt.Status)
	}
	if appt.PatientID != f.patient.ID || appt.DoctorID != f.doctor.ID {
		t.Errorf("appointment parties = %s/%s", appt.PatientID, appt.DoctorID)
	}

	if got, want := f.slots(t, monday), []string{"09:15", "09:30", "09:45"}; !slices.Equal(got, want) {
		t.Fatalf("after booking: got %v, want %v", got, want)
	}

	ok, err := f.repo.IsActivePatient(context.Background(), f.doctor.ID, f.patient.ID)
	if err != nil || !ok {
		t.Errorf("patient not in active set: ok=%v err=%v", ok, err)
	}

	events := f.repo.Events()
	if len(events) != 1 || events[0].EventType != EventAppointmentBooked {
		t.Errorf("events = %+v, want one %s", events, EventAppointmentBooked)
	}
}

func TestBook_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, f.patient, monday, "09:30")

	unverified := &Doctor{Name: "Dr. New", Template: schedule.MustWeeklyTemplate(nil), Settings: schedule.DefaultSettings()}
	if err := f.repo.CreateDoctor(ctx, unverified); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		actor auth.Principal
		req   BookRequest
		want  error
	}{
		{"doctor cannot book", f.doctor, BookRequest{f.doctor.ID, monday, "09:00", "x"}, ErrForbidden},
		{"bad date", f.patient, BookRequest{f.doctor.ID, "03-06-2024", "09:00", "x"}, schedule.ErrMalformedInput},
		{"bad time", f.patient, BookRequest{f.doctor.ID, monday, "9am", "x"}, schedule.ErrMalformedInput},
		{"blank reason", f.patient, BookRequest{f.doctor.ID, monday, "09:00", "   "}, schedule.ErrMalformedInput},
		{"unknown patient", auth.Principal{ID: uuid.New(), Role: auth.RolePatient}, BookRequest{f.doctor.ID, monday, "09:00", "x"}, ErrPatientNotFound},
		{"unknown doctor", f.patient, BookRequest{uuid.New(), monday, "09:00", "x"}, ErrDoctorNotFound},
		{"unverified doctor", f.patient, BookRequest{unverified.ID, monday, "09:00", "x"}, ErrDoctorUnverified},
		{"closed day", f.patient, BookRequest{f.doctor.ID, sunday, "09:00", "x"}, schedule.ErrClosedThatDay},
		{"interval end", f.patient, BookRequest{f.doctor.ID, monday, "10:00", "x"}, schedule.ErrOutsideHours},
		{"already booked", f.patient, BookRequest{f.doctor.ID, monday, "09:30", "x"}, schedule.ErrAlreadyBooked},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, tc.actor, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestBook_OffGridTimeInsideWindow(t *testing.T) {
	f := newFixture(t)

	appt := f.book(t, f.patient, monday, "09:07")
	if appt.Time.String() != "09:07" {
		t.Fatalf("time = %s", appt.Time)
	}
}

func TestBook_MaxPatientsOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateMaxPatients(ctx, f.doctor, 1); err != nil {
		t.Fatalf("UpdateMaxPatients: %v", err)
	}
	f.book(t, f.patient, monday, "09:00")

	listing, err := f.svc.ListSlots(ctx, f.doctor.ID, monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(listing.Slots) != 0 || listing.Message == "" {
		t.Errorf("listing = %+v, want empty with message", listing)
	}

	_, err = f.svc.Book(ctx, newPatient(t, f.repo), BookRequest{f.doctor.ID, monday, "09:15", "x"})
	if !errors.Is(err, schedule.ErrCapacityReached) {
		t.Fatalf("err = %v, want capacity reached", err)
	}
}

// barrierRepo holds every booked-set read until n callers have read, so all of
// them pass the availability check before anyone reserves.
type barrierRepo struct {
	*MemoryRepository
	wg *sync.WaitGroup
}

func (r barrierRepo) GetBookedSlots(ctx context.Context, doctorID uuid.UUID, date schedule.Date) (schedule.BookedSet, error) {
	set, err := r.MemoryRepository.GetBookedSlots(ctx, doctorID, date)
	r.wg.Done()
	r.wg.Wait()
	return set, err
}

func TestBook_ConcurrentSameSlot(t *testing.T) {
	mem := NewMemoryRepository()
	f := newFixtureWithRepo(t, mem)
	first, second := f.patient, newPatient(t, mem)

	var gate sync.WaitGroup
	gate.Add(2)
	svc := NewService(barrierRepo{MemoryRepository: mem, wg: &gate}, redisclient.NopLocker{}, zerolog.Nop())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, p := range []auth.Principal{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), p, BookRequest{f.doctor.ID, monday, "09:15", "race"})
		}()
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrSlotConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("successes=%d conflicts=%d, want 1 and 1", successes, conflicts)
	}

	booked, _ := mem.GetBookedSlots(context.Background(), f.doctor.ID, schedule.MustParseDate(monday))
	if booked.Len() != 1 {
		t.Errorf("booked set size = %d, want 1", booked.Len())
	}
}

func TestBook_ManyConcurrentCallers(t *testing.T) {
	f := newFixture(t)
	const n = 25

	patients := make([]auth.Principal, n)
	for i := range patients {
		patients[i] = newPatient(t, f.repo)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, p := range patients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Book(context.Background(), p, BookRequest{f.doctor.ID, monday, "09:45", "load"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrSlotConflict), errors.Is(err, schedule.ErrAlreadyBooked):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want 1", successes)
	}

	scheduled := StatusScheduled
	appts, err := f.repo.ListAppointments(context.Background(), ListFilter{DoctorID: &f.doctor.ID, Status: &scheduled, Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(appts) != 1 {
		t.Fatalf("scheduled appointments = %d, want 1", len(appts))
	}
}

type busyLocker struct{}

func (busyLocker) WithSlotLock(context.Context, string, func(context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestBook_LockBusyIsSlotConflict(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.repo, busyLocker{}, zerolog.Nop())

	_, err := svc.Book(context.Background(), f.patient, BookRequest{f.doctor.ID, monday, "09:00", "x"})
	if !errors.Is(err, ErrSlotBusy) || !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want busy slot conflict", err)
	}
}

func TestUpdateStatus_CancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.book(t, f.patient, monday, "09:00")
	cancelled, err := f.svc.UpdateStatus(ctx, f.patient, appt.ID, "cancelled")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %q", cancelled.Status)
	}

	if got := f.slots(t, monday); !slices.Contains(got, "09:00") {
		t.Fatalf("09:00 not freed: %v", got)
	}

	again := f.book(t, newPatient(t, f.repo), monday, "09:00")
	if again.ID == appt.ID {
		t.Fatal("rebooking reused the cancelled appointment")
	}
}

func TestUpdateStatus_Transitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.book(t, f.patient, monday, "09:15")

	if _, err := f.svc.UpdateStatus(ctx, f.patient, appt.ID, "archived"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("unknown status: err = %v", err)
	}

	same, err := f.svc.UpdateStatus(ctx, f.doctor, appt.ID, "scheduled")
	if err != nil || same.Status != StatusScheduled {
		t.Errorf("same status: %v %v", same, err)
	}

	done, err := f.svc.UpdateStatus(ctx, f.doctor, appt.ID, "completed")
	if err != nil || done.Status != StatusCompleted {
		t.Fatalf("complete: %v %v", done, err)
	}

	// Completing keeps the slot taken.
	if got := f.slots(t, monday); slices.Contains(got, "09:15") {
		t.Errorf("completed slot listed as free: %v", got)
	}

	if _, err := f.svc.UpdateStatus(ctx, f.patient, appt.ID, "cancelled"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("terminal -> cancelled: err = %v", err)
	}
	if _, err := f.svc.UpdateStatus(ctx, f.patient, uuid.New(), "cancelled"); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("missing appointment: err = %v", err)
	}
}

func TestUpdateStatus_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.book(t, f.patient, monday, "09:00")

	stranger := newPatient(t, f.repo)
	if _, err := f.svc.UpdateStatus(ctx, stranger, appt.ID, "cancelled"); !errors.Is(err, ErrForbidden) {
		t.Errorf("other patient: err = %v", err)
	}

	otherDoctor := auth.Principal{ID: uuid.New(), Role: auth.RoleDoctor}
	if _, err := f.svc.UpdateStatus(ctx, otherDoctor, appt.ID, "completed"); !errors.Is(err, ErrForbidden) {
		t.Errorf("other doctor: err = %v", err)
	}
	// A patient whose id happens to equal the doctor id is still not the doctor.
	asPatient := auth.Principal{ID: f.doctor.ID, Role: auth.RolePatient}
	if _, err := f.svc.UpdateStatus(ctx, asPatient, appt.ID, "completed"); !errors.Is(err, ErrForbidden) {
		t.Errorf("role mismatch: err = %v", err)
	}
}

type staleRepo struct {
	*MemoryRepository
}

func (staleRepo) TransitionAppointment(context.Context, uuid.UUID, AppointmentStatus, AppointmentStatus) (*Appointment, error) {
	return nil, ErrStaleStatus
}

func TestUpdateStatus_LostRaceIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.patient, monday, "09:00")

	svc := NewService(staleRepo{f.repo}, redisclient.NopLocker{}, zerolog.Nop())
	_, err := svc.UpdateStatus(context.Background(), f.patient, appt.ID, "cancelled")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want invalid transition", err)
	}
}

func TestUpdateSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	raw := map[string][]string{
		"monday":  {"14:00-15:00", "09:00-09:30"},
		"tuesday": {"10:00-11:00"},
	}
	tmpl, err := f.svc.UpdateSchedule(ctx, f.doctor, raw)
	if err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	echo := tmpl.Raw()
	if !slices.Equal(echo["monday"], raw["monday"]) || len(echo["sunday"]) != 0 {
		t.Errorf("echo = %v", echo)
	}

	want := []string{"09:00", "09:15", "14:00", "14:15", "14:30", "14:45"}
	if got := f.slots(t, monday); !slices.Equal(got, want) {
		t.Errorf("slots = %v, want %v", got, want)
	}

	if _, err := f.svc.UpdateSchedule(ctx, f.doctor, map[string][]string{"funday": {"09:00-10:00"}}); !errors.Is(err, schedule.ErrMalformedSchedule) {
		t.Errorf("bad day: err = %v", err)
	}
	if _, err := f.svc.UpdateSchedule(ctx, f.doctor, map[string][]string{"monday": {"9-10"}}); !errors.Is(err, schedule.ErrMalformedSchedule) {
		t.Errorf("bad interval: err = %v", err)
	}
	if _, err := f.svc.UpdateSchedule(ctx, f.patient, raw); !errors.Is(err, ErrForbidden) {
		t.Errorf("patient: err = %v", err)
	}
}

func TestUpdateSlotDuration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateSlotDuration(ctx, f.doctor, 4); !errors.Is(err, schedule.ErrMalformedInput) {
		t.Errorf("too short: err = %v", err)
	}
	if _, err := f.svc.UpdateSlotDuration(ctx, f.doctor, 61); !errors.Is(err, schedule.ErrMalformedInput) {
		t.Errorf("too long: err = %v", err)
	}

	d, err := f.svc.UpdateSlotDuration(ctx, f.doctor, 20)
	if err != nil || d.Settings.SlotDurationMinutes != 20 {
		t.Fatalf("UpdateSlotDuration: %v %v", d, err)
	}
	if got, want := f.slots(t, monday), []string{"09:00", "09:20", "09:40"}; !slices.Equal(got, want) {
		t.Errorf("slots = %v, want %v", got, want)
	}
}

func TestListSlots_Messages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	closed, err := f.svc.ListSlots(ctx, f.doctor.ID, sunday)
	if err != nil {
		t.Fatal(err)
	}
	if len(closed.Slots) != 0 || closed.Message != "Doctor is not available on Sunday" {
		t.Errorf("closed listing = %+v", closed)
	}
	if closed.Slots == nil {
		t.Error("closed listing slots should be empty, not nil")
	}

	if _, err := f.svc.ListSlots(ctx, uuid.New(), monday); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("unknown doctor: err = %v", err)
	}
	if _, err := f.svc.ListSlots(ctx, f.doctor.ID, "tomorrow"); !errors.Is(err, schedule.ErrMalformedInput) {
		t.Errorf("bad date: err = %v", err)
	}
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.book(t, f.patient, monday, "09:30")
	b := f.book(t, f.patient, monday, "09:00")
	if _, err := f.svc.UpdateStatus(ctx, f.patient, a.ID, "cancelled"); err != nil {
		t.Fatal(err)
	}

	mine, err := f.svc.ListPatientAppointments(ctx, f.patient, "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 || mine[0].ID != b.ID {
		t.Fatalf("patient listing = %+v", mine)
	}

	cancelled, err := f.svc.ListPatientAppointments(ctx, f.patient, "cancelled", 10, 0)
	if err != nil || len(cancelled) != 1 || cancelled[0].ID != a.ID {
		t.Fatalf("cancelled filter = %+v, %v", cancelled, err)
	}
	if _, err := f.svc.ListPatientAppointments(ctx, f.patient, "lost", 10, 0); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("bad filter: err = %v", err)
	}

	forDoctor, err := f.svc.ListDoctorAppointments(ctx, f.doctor, monday, "scheduled", 0, 0)
	if err != nil || len(forDoctor) != 1 || forDoctor[0].ID != b.ID {
		t.Fatalf("doctor listing = %+v, %v", forDoctor, err)
	}

	page, err := f.svc.ListDoctorAppointments(ctx, f.doctor, "", "", 1, 1)
	if err != nil || len(page) != 1 || page[0].ID != a.ID {
		t.Fatalf("doctor page = %+v, %v", page, err)
	}

	patients, err := f.svc.ActivePatients(ctx, f.doctor)
	if err != nil || len(patients) != 1 || patients[0].ID != f.patient.ID {
		t.Fatalf("active patients = %+v, %v", patients, err)
	}
	if _, err := f.svc.ActivePatients(ctx, f.patient); !errors.Is(err, ErrForbidden) {
		t.Errorf("patient asking for active patients: err = %v", err)
	}
}

func TestClampPage(t *testing.T) {
	tests := []struct{ limit, offset, wantLimit, wantOffset int }{
		{0, 0, DefaultListLimit, 0},
		{-5, -1, DefaultListLimit, 0},
		{500, 3, MaxListLimit, 3},
		{7, 2, 7, 2},
	}
	for _, tc := range tests {
		l, o := clampPage(tc.limit, tc.offset)
		if l != tc.wantLimit || o != tc.wantOffset {
			t.Errorf("clampPage(%d, %d) = %d, %d", tc.limit, tc.offset, l, o)
		}
	}
}

func TestReconcileBookedSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := schedule.MustParseDate(monday)

	kept := f.book(t, f.patient, monday, "09:00")
	orphan, _ := schedule.ParseClockTime("09:45")
	f.repo.ForceBookedSlot(f.doctor.ID, day, orphan)

	released, err := f.svc.ReconcileBookedSlots(ctx, day.AddDays(-1), day.AddDays(1))
	if err != nil {
		t.Fatalf("ReconcileBookedSlots: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}

	booked, _ := f.repo.GetBookedSlots(ctx, f.doctor.ID, day)
	if !booked.Has(kept.Time) || booked.Has(orphan) {
		t.Errorf("booked after reconcile = %v", booked.Sorted())
	}

	again, err := f.svc.ReconcileBookedSlots(ctx, day, day)
	if err != nil || again != 0 {
		t.Errorf("second pass released %d, err %v", again, err)
	}
}

func TestCreateDoctor_ZeroSettingsGetDefaults(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	doc := &Doctor{
		Name:            "Dr. Unset",
		VerifiedByAdmin: true,
		Template:        schedule.MustWeeklyTemplate(map[string][]string{"monday": {"09:00-10:00"}}),
		Settings:        schedule.Settings{MaxPatientsPerDay: 3},
	}
	if err := repo.CreateDoctor(ctx, doc); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetDoctor(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := schedule.Settings{SlotDurationMinutes: schedule.DefaultSlotDurationMinutes, MaxPatientsPerDay: 3}
	if got.Settings != want {
		t.Fatalf("settings = %+v, want %+v", got.Settings, want)
	}

	svc := NewService(repo, nil, zerolog.Nop())
	listing, err := svc.ListSlots(ctx, doc.ID, monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(listing.Slots) == 0 || listing.Message != "" {
		t.Errorf("listing = %+v, want open slots", listing)
	}
}

func TestListPatientAppointments_ReadsPatientIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := newPatient(t, f.repo)

	mine := f.book(t, f.patient, monday, "09:00")
	f.book(t, other, monday, "09:15")

	got, err := f.svc.ListPatientAppointments(ctx, f.patient, "", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != mine.ID {
		t.Fatalf("patient listing = %+v", got)
	}
}
