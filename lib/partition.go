package lib

import (
	"sort"
	"strconv"

	errorWrapper "github.com/pkg/errors"
)

// Order decides the sequence in which work items are handed to buckets.
type Order string

const (
	// OrderIdentifier walks items by identifier, descending. Existing shard
	// layouts depend on this order.
	OrderIdentifier Order = "identifier"
	// OrderDuration walks items longest first (LPT), identifier descending on ties.
	OrderDuration Order = "duration"
)

func ParseOrder(s string) (Order, error) {
	switch Order(s) {
	case "", OrderIdentifier:
		return OrderIdentifier, nil
	case OrderDuration:
		return OrderDuration, nil
	}
	return "", errorWrapper.Wrap(ErrUnknownOrder, s)
}

type Bucket struct {
	IDs   []string
	Total float64
}

func (b *Bucket) Add(id string, duration float64) {
	b.IDs = append(b.IDs, id)
	b.Total += duration
}

type Buckets struct {
	buckets []*Bucket
}

func NewBuckets(count int) (*Buckets, error) {
	if count <= 0 {
		return nil, &ArgumentRangeError{Name: "max-chunks", Value: strconv.Itoa(count), Reason: "must be at least 1"}
	}
	bs := &Buckets{buckets: make([]*Bucket, count)}
	for i := range bs.buckets {
		bs.buckets[i] = &Bucket{IDs: []string{}}
	}
	return bs, nil
}

func (bs *Buckets) Len() int {
	return len(bs.buckets)
}

// Min returns the least loaded bucket, the lowest index winning ties.
func (bs *Buckets) Min() *Bucket {
	min := bs.buckets[0]
	for _, b := range bs.buckets[1:] {
		if b.Total < min.Total {
			min = b
		}
	}
	return min
}

func (bs *Buckets) AddToMin(id string, duration float64) {
	bs.Min().Add(id, duration)
}

// Bucket returns the bucket at the 1-based index selected.
func (bs *Buckets) Bucket(selected int) (*Bucket, error) {
	if selected < 1 || selected > len(bs.buckets) {
		return nil, &ArgumentRangeError{
			Name:   "chunk",
			Value:  strconv.Itoa(selected),
			Reason: "must be between 1 and " + strconv.Itoa(len(bs.buckets)),
		}
	}
	return bs.buckets[selected-1], nil
}

func (bs *Buckets) All() []*Bucket {
	return bs.buckets
}

func (bs *Buckets) Total() float64 {
	var total float64
	for _, b := range bs.buckets {
		total += b.Total
	}
	return total
}

// Makespan is the largest bucket total.
func (bs *Buckets) Makespan() float64 {
	var max float64
	for _, b := range bs.buckets {
		if b.Total > max {
			max = b.Total
		}
	}
	return max
}

type PartitionOptions struct {
	ZeroDuration float64
	Order        Order
}

// Partition greedily assigns every item to the least loaded of count buckets.
// Zero durations are charged opts.ZeroDuration before ordering.
func Partition(items []WorkItem, count int, opts PartitionOptions) (*Buckets, error) {
	buckets, err := NewBuckets(count)
	if err != nil {
		return nil, err
	}
	ordered := ApplyZeroDuration(items, opts.ZeroDuration)
	sortWorkItems(ordered, opts.Order)
	for _, item := range ordered {
		buckets.AddToMin(item.ID, item.Duration)
	}
	return buckets, nil
}

func sortWorkItems(items []WorkItem, order Order) {
	if order == OrderDuration {
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Duration != items[j].Duration {
				return items[i].Duration > items[j].Duration
			}
			return items[i].ID > items[j].ID
		})
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ID > items[j].ID
	})
}
