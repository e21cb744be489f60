package heap

// TID (Tuple ID) locates a stored row:
// PageID: page of the heap file
// Slot  : slot index in the page
type TID struct {
	PageID uint32
	Slot   uint16
}
