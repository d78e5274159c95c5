package orders

type Status string

const (
	StatusNew       Status = "New"
	StatusShipped   Status = "Shipped"
	StatusCancelled Status = "Cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusShipped, StatusCancelled:
		return true
	}
	return false
}
