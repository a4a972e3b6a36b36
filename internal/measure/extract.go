// Package measure pulls well-known measurement values out of the free-form
// JSON payload a sensor reports. Devices are inconsistent about key names
// ("temp" vs "temperature_c"), so each measurement has an ordered candidate
// list and the first usable key wins.
package measure

import "strconv"

var (
	temperatureKeys      = []string{"temperature_c", "temp_c", "temperature", "temp"}
	humidityKeys         = []string{"humidity_percent", "humidity", "hum"}
	waterTemperatureKeys = []string{"water_temperature_c", "water_temp_c", "water_temperature", "wtemp"}
)

// Values holds the extracted measurements. A nil pointer means the payload
// carried no usable value for that measurement.
type Values struct {
	Temperature      *float64
	Humidity         *float64
	WaterTemperature *float64
}

// Extract never fails: missing keys, wrong types, or a non-object payload all
// come back as nil fields.
func Extract(data map[string]any) Values {
	if data == nil {
		return Values{}
	}
	return Values{
		Temperature:      pick(data, temperatureKeys),
		Humidity:         pick(data, humidityKeys),
		WaterTemperature: pick(data, waterTemperatureKeys),
	}
}

// pick selects the first candidate key holding a non-nil, non-empty value and
// coerces it. A present but uncoercible value yields nil rather than falling
// through to later candidates.
func pick(data map[string]any, keys []string) *float64 {
	for _, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		if f, ok := coerce(v); ok {
			return &f
		}
		return nil
	}
	return nil
}

func coerce(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
