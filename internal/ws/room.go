package ws

// RoomID names the room shared by two users. Argument order does not matter.
func RoomID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}
