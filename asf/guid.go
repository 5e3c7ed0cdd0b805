package asf

import "github.com/google/uuid"

// ASF object identifiers from the ASF specification. On disk the first
// three GUID fields are little-endian; uuid.UUID holds the big-endian
// textual layout, so the byte order is swapped at the I/O boundary.
var (
	guidHeaderObject        = uuid.MustParse("75B22630-668E-11CF-A6D9-00AA0062CE6C")
	guidFileProperties      = uuid.MustParse("8CABDCA1-A947-11CF-8EE4-00C00C205365")
	guidStreamProperties    = uuid.MustParse("B7DC0791-A9B7-11CF-8EE6-00C00C205365")
	guidContentDescription  = uuid.MustParse("75B22633-668E-11CF-A6D9-00AA0062CE6C")
	guidExtContentDesc      = uuid.MustParse("D2D0A440-E307-11D2-97F0-00A0C95EA850")
	guidHeaderExtension     = uuid.MustParse("5FBF03B5-A92E-11CF-8EE3-00C00C205365")
	guidHeaderExtReserved   = uuid.MustParse("ABD3D211-A9BA-11cf-8EE6-00C00C205365")
	guidMetadata            = uuid.MustParse("C5F8CBEA-5BAF-4877-8467-AA8C44FA4CCA")
	guidMetadataLibrary     = uuid.MustParse("44231C94-9498-49D1-A141-1D134E457054")
)

// decodeGUID converts the on-disk mixed-endian layout to a uuid.UUID.
func decodeGUID(b []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])
	return u
}

// encodeGUID converts a uuid.UUID to the on-disk mixed-endian layout.
func encodeGUID(u uuid.UUID) []byte {
	b := make([]byte, 16)
	b[0], b[1], b[2], b[3] = u[3], u[2], u[1], u[0]
	b[4], b[5] = u[5], u[4]
	b[6], b[7] = u[7], u[6]
	copy(b[8:], u[8:16])
	return b
}
