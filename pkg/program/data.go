package program

// Data accumulates statistic values keyed by statistic identity.
// The zero value is ready to use; zero updates never materialize a key.
type Data map[string]int64

// Get returns the value for id, or 0 when unset.
func (d Data) Get(id string) int64 {
	return d[id]
}

// Set stores v for id. Use Reset to clear a value.
func (d *Data) Set(id string, v int64) {
	if v == 0 {
		return
	}
	d.init()
	(*d)[id] = v
}

// Add adds v to the value of id.
func (d *Data) Add(id string, v int64) {
	if v == 0 {
		return
	}
	d.init()
	(*d)[id] += v
}

// Max raises the value of id to v if v is larger. An unset value reads
// as 0, so negative values never materialize a key.
func (d *Data) Max(id string, v int64) {
	if v == 0 || v <= d.Get(id) {
		return
	}
	d.init()
	(*d)[id] = v
}

// Reset forgets the value of id.
func (d Data) Reset(id string) {
	delete(d, id)
}

func (d *Data) init() {
	if *d == nil {
		*d = make(Data)
	}
}
