package common

// StoreSource adapts a FileDriver to a single-table Source. Deleted rows
// are skipped; row ids of later records are unaffected. Closing the source
// closes the driver.
func StoreSource(driver FileDriver, progress Progress) Source {
	if progress == nil {
		progress = NoProgress
	}
	return &storeSource{driver: driver, progress: progress, count: driver.RowCount()}
}

type storeSource struct {
	driver   FileDriver
	progress Progress
	next     int64
	count    int64
}

func (s *storeSource) Tables() []TableDef {
	return []TableDef{{Schema: s.driver.Schema()}}
}

func (s *storeSource) Next() (Result, error) {
	for s.next < s.count {
		id := s.next
		s.next++
		res, err := s.driver.Row(id)
		if err != nil {
			return Result{}, err
		}
		if s.next%1000 == 0 || s.next == s.count {
			s.progress.ProgressTo(float64(s.next) / float64(s.count))
		}
		if res.State == StateDeleted {
			continue
		}
		return res, nil
	}
	return Result{State: StateEnd}, nil
}

func (s *storeSource) Close() error { return s.driver.Close() }
