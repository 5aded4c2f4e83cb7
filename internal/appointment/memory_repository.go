package appointment

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicslot/clinicslot/internal/schedule"
)

type dayKey struct {
	doctorID uuid.UUID
	date     string
}

type activeEntry struct {
	patientID uuid.UUID
	since     time.Time
}

// MemoryRepository keeps the schedule store in process. A single mutex makes
// every method one atomic unit, which gives it the same conditional-write
// behaviour as PgRepository.
type MemoryRepository struct {
	mu sync.Mutex

	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	booked       map[dayKey]map[schedule.ClockTime]uuid.UUID
	patientAppts map[uuid.UUID][]uuid.UUID
	active       map[uuid.UUID][]activeEntry
	events       []EventLog

	now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		appointments: make(map[uuid.UUID]Appointment),
		booked:       make(map[dayKey]map[schedule.ClockTime]uuid.UUID),
		patientAppts: make(map[uuid.UUID][]uuid.UUID),
		active:       make(map[uuid.UUID][]activeEntry),
		now:          time.Now,
	}
}

func keyOf(doctorID uuid.UUID, date schedule.Date) dayKey {
	return dayKey{doctorID: doctorID, date: date.String()}
}

func (r *MemoryRepository) CreateDoctor(_ context.Context, d *Doctor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.fillDefaultSettings()
	now := r.now()
	d.CreatedAt, d.UpdatedAt = now, now
	r.doctors[d.ID] = *d
	return nil
}

func (r *MemoryRepository) CreatePatient(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := r.now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.patients[p.ID] = *p
	return nil
}

func (r *MemoryRepository) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetBookedSlots(_ context.Context, doctorID uuid.UUID, date schedule.Date) (schedule.BookedSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := schedule.NewBookedSet()
	for t := range r.booked[keyOf(doctorID, date)] {
		set.Add(t)
	}
	return set, nil
}

func (r *MemoryRepository) ConditionalReserve(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doctor, ok := r.doctors[a.DoctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	if _, ok := r.patients[a.PatientID]; !ok {
		return nil, ErrPatientNotFound
	}

	key := keyOf(a.DoctorID, a.Date)
	day := r.booked[key]
	if _, taken := day[a.Time]; taken {
		return nil, ErrSlotConflict
	}
	if len(day) >= doctor.Settings.MaxPatientsPerDay {
		return nil, schedule.ErrCapacityReached
	}

	if day == nil {
		day = make(map[schedule.ClockTime]uuid.UUID)
		r.booked[key] = day
	}
	day[a.Time] = a.ID

	now := r.now()
	created := *a
	created.Status = StatusScheduled
	created.CreatedAt, created.UpdatedAt = now, now
	r.appointments[created.ID] = created
	r.patientAppts[created.PatientID] = append(r.patientAppts[created.PatientID], created.ID)

	if !slices.ContainsFunc(r.active[created.DoctorID], func(e activeEntry) bool { return e.patientID == created.PatientID }) {
		r.active[created.DoctorID] = append(r.active[created.DoctorID], activeEntry{patientID: created.PatientID, since: now})
	}

	return &created, nil
}

func (r *MemoryRepository) ReleaseSlot(_ context.Context, doctorID uuid.UUID, date schedule.Date, t schedule.ClockTime) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.releaseLocked(keyOf(doctorID, date), t), nil
}

func (r *MemoryRepository) releaseLocked(key dayKey, t schedule.ClockTime) bool {
	day := r.booked[key]
	if _, ok := day[t]; !ok {
		return false
	}
	delete(day, t)
	if len(day) == 0 {
		delete(r.booked, key)
	}
	return true
}

func (r *MemoryRepository) updateDoctor(id uuid.UUID, fn func(*Doctor)) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	fn(&d)
	d.UpdatedAt = r.now()
	r.doctors[id] = d
	return &d, nil
}

func (r *MemoryRepository) SetWeeklyTemplate(_ context.Context, doctorID uuid.UUID, tmpl schedule.WeeklyTemplate) (*Doctor, error) {
	return r.updateDoctor(doctorID, func(d *Doctor) { d.Template = tmpl })
}

func (r *MemoryRepository) SetSlotDuration(_ context.Context, doctorID uuid.UUID, minutes int) (*Doctor, error) {
	return r.updateDoctor(doctorID, func(d *Doctor) { d.Settings.SlotDurationMinutes = minutes })
}

func (r *MemoryRepository) SetMaxPatients(_ context.Context, doctorID uuid.UUID, n int) (*Doctor, error) {
	return r.updateDoctor(doctorID, func(d *Doctor) { d.Settings.MaxPatientsPerDay = n })
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) TransitionAppointment(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStaleStatus
	}

	a.Status = to
	a.UpdatedAt = r.now()
	r.appointments[id] = a

	if from == StatusScheduled && to == StatusCancelled {
		r.releaseLocked(keyOf(a.DoctorID, a.Date), a.Time)
	}
	return &a, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.appointments
	if f.PatientID != nil {
		candidates = make(map[uuid.UUID]Appointment, len(r.patientAppts[*f.PatientID]))
		for _, id := range r.patientAppts[*f.PatientID] {
			candidates[id] = r.appointments[id]
		}
	}

	var result []Appointment
	for _, a := range candidates {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Date != nil && a.Date.String() != f.Date.String() {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		result = append(result, a)
	}

	slices.SortFunc(result, func(x, y Appointment) int {
		switch {
		case x.Date.Before(y.Date):
			return -1
		case y.Date.Before(x.Date):
			return 1
		case x.Time != y.Time:
			return int(x.Time - y.Time)
		default:
			return x.CreatedAt.Compare(y.CreatedAt)
		}
	})

	if f.Offset >= len(result) {
		return nil, nil
	}
	result = result[f.Offset:]
	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) ListActivePatients(_ context.Context, doctorID uuid.UUID) ([]Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Patient
	for _, e := range r.active[doctorID] {
		if p, ok := r.patients[e.patientID]; ok {
			result = append(result, p)
		}
	}
	return result, nil
}

func (r *MemoryRepository) IsActivePatient(_ context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.ContainsFunc(r.active[doctorID], func(e activeEntry) bool { return e.patientID == patientID }), nil
}

func (r *MemoryRepository) FindOrphanedSlots(_ context.Context, from, to schedule.Date) ([]BookedSlot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	scheduled := make(map[dayKey]map[schedule.ClockTime]bool)
	for _, a := range r.appointments {
		if a.Status != StatusScheduled {
			continue
		}
		k := keyOf(a.DoctorID, a.Date)
		if scheduled[k] == nil {
			scheduled[k] = make(map[schedule.ClockTime]bool)
		}
		scheduled[k][a.Time] = true
	}

	var result []BookedSlot
	for k, day := range r.booked {
		date, err := schedule.ParseDate(k.date)
		if err != nil {
			return nil, err
		}
		if date.Before(from) || to.Before(date) {
			continue
		}
		for t, apptID := range day {
			if scheduled[k][t] {
				continue
			}
			slot := BookedSlot{DoctorID: k.doctorID, Date: date, Time: t}
			if apptID != uuid.Nil {
				id := apptID
				slot.AppointmentID = &id
			}
			result = append(result, slot)
		}
	}

	slices.SortFunc(result, func(x, y BookedSlot) int {
		if c := x.Date.Time().Compare(y.Date.Time()); c != 0 {
			return c
		}
		return int(x.Time - y.Time)
	})
	return result, nil
}

// ForceBookedSlot adds a booked-set entry without an appointment behind it.
// Used to reproduce drift for the reconciler.
func (r *MemoryRepository) ForceBookedSlot(doctorID uuid.UUID, date schedule.Date, t schedule.ClockTime) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyOf(doctorID, date)
	if r.booked[key] == nil {
		r.booked[key] = make(map[schedule.ClockTime]uuid.UUID)
	}
	r.booked[key][t] = uuid.Nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.events)
}
