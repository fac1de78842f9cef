package hass

// uniqueID renders id as eight lowercase hex digits, least significant
// nibble first. Ids only need to be stable across restarts for Home
// Assistant to keep its entity registry.
func uniqueID(id uint32) string {
	var buf [8]byte
	for i := range buf {
		v := byte(id>>(uint(i)*4)) & 0x0f
		if v < 10 {
			buf[i] = '0' + v
		} else {
			buf[i] = 'a' + v - 10
		}
	}
	return string(buf[:])
}

// identifierID is the byte sum of the device identifier. Endpoint ids are
// numbered upwards from it.
func identifierID(identifier string) uint32 {
	var id uint32
	for i := 0; i < len(identifier); i++ {
		id += uint32(identifier[i])
	}
	return id
}

// childID derives the id of the next child of parent. The low byte holds
// the child's ordinal.
func childID(parent, ordinal uint32) uint32 {
	return parent<<8 | ordinal
}
