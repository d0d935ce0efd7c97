package binpack

import "time"

// Date/Time/DateTime fields are modelled as *time.Time: nil encodes as
// an all-0xFF sentinel of the kind's fixed width, matching the
// "nullable-aware" requirement in spec.md §4.4. Non-nil values are
// encoded as a fixed sequence of BCD-free single bytes (year offset
// from 2000, month, day, hour, minute, second as applicable) in UTC.

func writeDate(w *writer, t *time.Time) {
	if t == nil {
		w.Write([]byte{0xFF, 0xFF, 0xFF})
		return
	}
	u := t.UTC()
	w.Write([]byte{byte(u.Year() - 2000), byte(u.Month()), byte(u.Day())})
}

func readDate(r *reader) (*time.Time, error) {
	b, err := r.readN(3)
	if err != nil {
		return nil, err
	}
	if b[0] == 0xFF && b[1] == 0xFF && b[2] == 0xFF {
		return nil, nil
	}
	t := time.Date(2000+int(b[0]), time.Month(b[1]), int(b[2]), 0, 0, 0, 0, time.UTC)
	return &t, nil
}

func writeTime(w *writer, t *time.Time) {
	if t == nil {
		w.Write([]byte{0xFF, 0xFF, 0xFF})
		return
	}
	u := t.UTC()
	w.Write([]byte{byte(u.Hour()), byte(u.Minute()), byte(u.Second())})
}

func readTime(r *reader) (*time.Time, error) {
	b, err := r.readN(3)
	if err != nil {
		return nil, err
	}
	if b[0] == 0xFF && b[1] == 0xFF && b[2] == 0xFF {
		return nil, nil
	}
	t := time.Date(0, 1, 1, int(b[0]), int(b[1]), int(b[2]), 0, time.UTC)
	return &t, nil
}

func writeDateTime(w *writer, t *time.Time) {
	if t == nil {
		w.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
		return
	}
	u := t.UTC()
	w.Write([]byte{
		byte(u.Year() - 2000), byte(u.Month()), byte(u.Day()),
		byte(u.Hour()), byte(u.Minute()), byte(u.Second()),
	})
}

func readDateTime(r *reader) (*time.Time, error) {
	b, err := r.readN(6)
	if err != nil {
		return nil, err
	}
	allFF := true
	for _, x := range b {
		if x != 0xFF {
			allFF = false
			break
		}
	}
	if allFF {
		return nil, nil
	}
	t := time.Date(2000+int(b[0]), time.Month(b[1]), int(b[2]), int(b[3]), int(b[4]), int(b[5]), 0, time.UTC)
	return &t, nil
}
