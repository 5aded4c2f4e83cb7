package seed

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicslot/clinicslot/internal/appointment"
	"github.com/clinicslot/clinicslot/internal/schedule"
)

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var slotDurations = []int{10, 15, 20, 30}

// Store is the part of the schedule store the seeder writes to.
type Store interface {
	CreateDoctor(ctx context.Context, d *appointment.Doctor) error
	CreatePatient(ctx context.Context, p *appointment.Patient) error
}

// Generator builds fake doctors and patients. The same seed yields the same data.
type Generator struct {
	faker *gofakeit.Faker
}

func NewGenerator(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// WeeklyTemplate returns a plausible clinic week: most weekdays open with a
// morning window and sometimes an afternoon one, Saturdays occasionally,
// Sundays never.
func (g *Generator) WeeklyTemplate() schedule.WeeklyTemplate {
	raw := make(map[string][]string)
	for _, day := range schedule.Weekdays {
		openChance := 85
		switch day {
		case schedule.Saturday:
			openChance = 30
		case schedule.Sunday:
			continue
		}
		if g.faker.Number(1, 100) > openChance {
			continue
		}

		start := g.faker.Number(7, 10)
		end := start + g.faker.Number(2, 4)
		slots := []string{fmt.Sprintf("%02d:00-%02d:00", start, end)}

		if day != schedule.Saturday && g.faker.Bool() {
			pmStart := g.faker.Number(max(end+1, 13), 15)
			slots = append(slots, fmt.Sprintf("%02d:30-%02d:00", pmStart, pmStart+g.faker.Number(2, 3)))
		}
		raw[string(day)] = slots
	}
	return schedule.MustWeeklyTemplate(raw)
}

func (g *Generator) Doctor() *appointment.Doctor {
	spec := g.faker.RandomString(specializations)
	return &appointment.Doctor{
		ID:              uuid.New(),
		Name:            "Dr. " + g.faker.Name(),
		Specialization:  &spec,
		VerifiedByAdmin: g.faker.Number(1, 10) > 1,
		Template:        g.WeeklyTemplate(),
		Settings: schedule.Settings{
			SlotDurationMinutes: slotDurations[g.faker.Number(0, len(slotDurations)-1)],
			MaxPatientsPerDay:   g.faker.Number(8, 30),
		},
	}
}

func (g *Generator) Patient() *appointment.Patient {
	email := g.faker.Email()
	return &appointment.Patient{
		ID:    uuid.New(),
		Name:  g.faker.Name(),
		Email: &email,
	}
}

// Result lists the ids that were written.
type Result struct {
	DoctorIDs  []uuid.UUID
	PatientIDs []uuid.UUID
}

// Run writes the requested number of doctors and patients to store.
func Run(ctx context.Context, store Store, g *Generator, doctors, patients int, log zerolog.Logger) (Result, error) {
	var res Result

	log.Info().Int("count", doctors).Msg("seeding doctors")
	for range doctors {
		d := g.Doctor()
		if err := store.CreateDoctor(ctx, d); err != nil {
			return res, fmt.Errorf("create doctor: %w", err)
		}
		res.DoctorIDs = append(res.DoctorIDs, d.ID)
	}

	log.Info().Int("count", patients).Msg("seeding patients")
	for i := range patients {
		p := g.Patient()
		if err := store.CreatePatient(ctx, p); err != nil {
			return res, fmt.Errorf("create patient: %w", err)
		}
		res.PatientIDs = append(res.PatientIDs, p.ID)

		if n := i + 1; n%500 == 0 || n == patients {
			log.Debug().Int("done", n).Int("total", patients).Msg("patients seeded")
		}
	}

	return res, nil
}
