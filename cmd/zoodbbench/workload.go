package main

import "math/rand"

// WorkloadType names a mixed read/write/scan distribution.
type WorkloadType string

const (
	OLTP      WorkloadType = "OLTP (90/10)"
	OLAP      WorkloadType = "OLAP (10/90)"
	Reporting WorkloadType = "Reporting (Range)"
)

// executeWorkload drives ops operations of the given distribution against
// idx. Keys are drawn from [0, ops) so reads mostly hit keys the load
// phase already inserted.
func executeWorkload(idx Index, wType WorkloadType, ops int) {
	for i := 0; i < ops; i++ {
		choice := rand.Intn(100)
		key := int64(rand.Intn(ops))

		switch wType {
		case OLTP:
			if choice < 90 {
				_, _ = idx.Get(key)
			} else {
				_ = idx.Insert(key, []byte("x"))
			}
		case OLAP:
			if choice < 10 {
				_, _ = idx.Get(key)
			} else {
				_ = idx.Insert(key, []byte("x"))
			}
		case Reporting:
			it, err := idx.Range(key, key+100)
			if err != nil || it == nil {
				continue
			}
			for it.Next() {
			}
			it.Close()
		}
	}
}
