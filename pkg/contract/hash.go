package contract

import "github.com/zeebo/xxh3"

// Hash is consistent with Equal but deliberately coarse: it mixes the name
// with collection sizes only. Jobs that differ in content but share a name
// and shape collide, so callers must never treat equal hashes as equal jobs.
func (j *Job) Hash() uint64 {
	if j == nil {
		return 0
	}
	var result uint64
	if j.Name != "" {
		result = xxh3.HashString(j.Name)
	}
	for _, n := range []int{
		len(j.Tabs),
		len(j.Resources),
		len(j.EnvironmentVariables),
		len(j.Artifacts),
		len(j.PropertyGenerators),
	} {
		result = 31*result + uint64(n)
	}
	return result
}

// JobIndex is a hash-bucketed set of jobs. Buckets are resolved with Equal,
// so Hash collisions only cost a comparison.
type JobIndex struct {
	buckets map[uint64][]*Job
	size    int
}

func NewJobIndex() *JobIndex {
	return &JobIndex{buckets: make(map[uint64][]*Job)}
}

// Add inserts job unless an equal job is already present.
func (x *JobIndex) Add(job *Job) bool {
	if x.Contains(job) {
		return false
	}
	h := job.Hash()
	x.buckets[h] = append(x.buckets[h], job)
	x.size++
	return true
}

func (x *JobIndex) Contains(job *Job) bool {
	for _, candidate := range x.buckets[job.Hash()] {
		if candidate.Equal(job) {
			return true
		}
	}
	return false
}

func (x *JobIndex) Len() int {
	return x.size
}
