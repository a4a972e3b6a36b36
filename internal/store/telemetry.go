package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrSensorNotFound = errors.New("sensor not found")

// IngestInput is one validated ingest payload. Data is the raw JSON object as
// submitted; it is stored verbatim.
type IngestInput struct {
	Slug     string
	Name     string
	TypeName string
	Location string
	Data     []byte
	At       time.Time
}

// IngestReading runs the full ingest sequence in one transaction: get or
// create the sensor type, get or create the sensor, update drifted sensor
// metadata, append the reading. Either everything commits or nothing does.
func (r *Repo) IngestReading(ctx context.Context, in IngestInput) (*Reading, error) {
	var reading *Reading
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var st SensorType
		err := tx.Where("name = ?", in.TypeName).First(&st).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			st = SensorType{Name: in.TypeName}
			if err := tx.Create(&st).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		var sensor Sensor
		err = tx.Where("slug = ?", in.Slug).First(&sensor).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			sensor = Sensor{
				Name:         in.Name,
				Slug:         in.Slug,
				SensorTypeID: st.ID,
				Location:     in.Location,
			}
			if err := tx.Create(&sensor).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			// Metadata drifts when a device is re-flashed or moved; write
			// back only the fields that actually changed.
			updates := map[string]any{}
			if sensor.SensorTypeID != st.ID {
				updates["sensor_type_id"] = st.ID
				sensor.SensorTypeID = st.ID
			}
			if in.Location != "" && sensor.Location != in.Location {
				updates["location"] = in.Location
				sensor.Location = in.Location
			}
			if in.Name != "" && sensor.Name != in.Name {
				updates["name"] = in.Name
				sensor.Name = in.Name
			}
			if len(updates) > 0 {
				if err := tx.Model(&Sensor{}).Where("id = ?", sensor.ID).Updates(updates).Error; err != nil {
					return err
				}
			}
		}
		sensor.SensorType = st

		rd := Reading{
			SensorID:  sensor.ID,
			Timestamp: in.At,
			Data:      datatypes.JSON(in.Data),
		}
		if err := tx.Create(&rd).Error; err != nil {
			return err
		}
		rd.Sensor = sensor
		reading = &rd
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reading, nil
}

func (r *Repo) SensorBySlug(ctx context.Context, slug string) (*Sensor, error) {
	var s Sensor
	err := r.db.WithContext(ctx).Preload("SensorType").Where("slug = ?", slug).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSensorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LatestReading returns the newest reading for a sensor, or nil when it has
// none yet.
func (r *Repo) LatestReading(ctx context.Context, sensorID uint) (*Reading, error) {
	var rd Reading
	err := r.db.WithContext(ctx).
		Where("sensor_id = ?", sensorID).
		Order("timestamp DESC").
		First(&rd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rd, nil
}

func (r *Repo) ListSensors(ctx context.Context) ([]Sensor, error) {
	var sensors []Sensor
	err := r.db.WithContext(ctx).
		Preload("SensorType").
		Order("slug ASC").
		Find(&sensors).Error
	return sensors, err
}

// ReadingFilter narrows a history query. Zero values mean "not filtered".
type ReadingFilter struct {
	Slug     string
	Query    string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// QueryReadings returns one page of readings newest-first plus the total
// match count. The count and the page are two independent queries, so a row
// inserted between them can shift the page by one; callers accept that.
func (r *Repo) QueryReadings(ctx context.Context, f ReadingFilter) ([]Reading, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 100
	}

	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&Reading{}).
			Joins("JOIN sensors ON sensors.id = readings.sensor_id").
			Joins("LEFT JOIN sensor_types ON sensor_types.id = sensors.sensor_type_id")
		if f.Slug != "" {
			q = q.Where("sensors.slug = ?", f.Slug)
		}
		if f.From != nil {
			q = q.Where("readings.timestamp >= ?", *f.From)
		}
		if f.To != nil {
			q = q.Where("readings.timestamp <= ?", *f.To)
		}
		if f.Query != "" {
			like := "%" + strings.ToLower(f.Query) + "%"
			q = q.Where(
				"lower(sensors.slug) LIKE ? OR lower(sensors.name) LIKE ? OR lower(sensors.location) LIKE ? OR lower(sensor_types.name) LIKE ?",
				like, like, like, like,
			)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Reading
	err := base().
		Order("readings.timestamp DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Preload("Sensor.SensorType").
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
