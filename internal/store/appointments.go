package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Appointment is a booking written after the portal confirmed it.
type Appointment struct {
	ID                 int64     `json:"id"`
	Phone              string    `json:"telephone"`
	Vehicle            string    `json:"car"`
	ServiceCode        string    `json:"service_code"`
	ServiceDescription string    `json:"service_description,omitempty"`
	DateTime           time.Time `json:"date"`
	Transport          string    `json:"transport_mode"`
	CreatedAt          time.Time `json:"created_at"`
}

const appointmentColumns = `id, telephone, car, service_code, service_description, appointment_at, transport_mode, created_at`

// InsertAppointment stores a confirmed booking and returns its id.
func (s *Store) InsertAppointment(ctx context.Context, a Appointment) (int64, error) {
	query := `
        INSERT INTO appointments (telephone, car, service_code, service_description, appointment_at, transport_mode)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id;
    `
	var id int64
	err := s.pool.QueryRow(ctx, query,
		a.Phone, a.Vehicle, a.ServiceCode, a.ServiceDescription, a.DateTime.UTC(), a.Transport,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert appointment: %w", err)
	}
	s.log.Info("Appointment stored.", zap.Int64("appointment_id", id), zap.String("car", a.Vehicle))
	return id, nil
}

// AppointmentByID returns one appointment or ErrNotFound.
func (s *Store) AppointmentByID(ctx context.Context, id int64) (Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1;`
	a, err := scanAppointment(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("failed to query appointment: %w", err)
	}
	return a, nil
}

// AppointmentsByPhone lists a customer's appointments by date.
func (s *Store) AppointmentsByPhone(ctx context.Context, phone string) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE telephone = $1 ORDER BY appointment_at ASC;`
	rows, err := s.pool.Query(ctx, query, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

// DeleteAppointmentsByPhone removes every appointment of a customer.
func (s *Store) DeleteAppointmentsByPhone(ctx context.Context, phone string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM appointments WHERE telephone = $1;`, phone)
	if err != nil {
		return 0, fmt.Errorf("failed to delete appointments: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAppointmentsByPhoneAndDate removes a customer's appointments on the
// calendar day of date, in date's location.
func (s *Store) DeleteAppointmentsByPhoneAndDate(ctx context.Context, phone string, date time.Time) (int64, error) {
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	to := from.AddDate(0, 0, 1)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM appointments WHERE telephone = $1 AND appointment_at >= $2 AND appointment_at < $3;`,
		phone, from.UTC(), to.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete appointments: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Phone, &a.Vehicle, &a.ServiceCode, &a.ServiceDescription, &a.DateTime, &a.Transport, &a.CreatedAt)
	return a, err
}
