package api

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
	Step    string `json:"step,omitempty"`
}

// MetaInput is the container metadata a client already extracted.
type MetaInput struct {
	DNGVersion    uint32 `json:"dng_version"`
	Compression   uint16 `json:"compression"`
	BitsPerSample int    `json:"bits_per_sample"`
	Samples       int    `json:"samples"`
	Make          string `json:"make,omitempty"`
	FileSize      int64  `json:"file_size"`
	Filters       uint32 `json:"filters"`
	FloatingPoint bool   `json:"floating_point,omitempty"`
	FujiRotated   bool   `json:"fuji_rotated,omitempty"`
	LossyUnpacker bool   `json:"lossy_unpacker,omitempty"`
}

type ClassifyRequest struct {
	Meta        MetaInput `json:"meta"`
	Categories  []string  `json:"categories,omitempty"`
	AddPreviews bool      `json:"add_previews,omitempty"`
}

type VerdictResponse struct {
	Object      string   `json:"object"`
	Decision    string   `json:"decision"`
	Rule        string   `json:"rule"`
	Diagnostics []string `json:"diagnostics"`
}

type DescriptorSummary struct {
	Index         int       `json:"index"`
	Main          bool      `json:"main,omitempty"`
	Preview       bool      `json:"preview,omitempty"`
	Width         uint32    `json:"width"`
	Height        uint32    `json:"height"`
	Samples       int       `json:"samples"`
	BitsPerSample uint32    `json:"bits_per_sample"`
	Compression   uint16    `json:"compression"`
	Photometric   uint16    `json:"photometric"`
	PixelType     string    `json:"pixel_type"`
	Tiled         bool      `json:"tiled"`
	TileWidth     uint32    `json:"tile_width"`
	TileLength    uint32    `json:"tile_length"`
	Tiles         uint32    `json:"tiles"`
	Offset        uint64    `json:"offset"`
	Opcodes       []int     `json:"opcodes,omitempty"`
	BlackLevel    []float64 `json:"black_level,omitempty"`
	WhiteLevel    []uint32  `json:"white_level,omitempty"`
}

type GroupSummary struct {
	Group       string              `json:"group"`
	Descriptors []DescriptorSummary `json:"descriptors"`
}

type IndexSummary struct {
	Object     string           `json:"object"`
	DNGVersion string           `json:"dng_version"`
	Make       string           `json:"make,omitempty"`
	Model      string           `json:"model,omitempty"`
	ByteOrder  string           `json:"byte_order"`
	MainIndex  int              `json:"main_index"`
	Valid      bool             `json:"valid"`
	Groups     []GroupSummary   `json:"groups"`
	Verdict    *VerdictResponse `json:"verdict,omitempty"`
}

type LayoutSummary struct {
	Kind       string `json:"kind"`
	Type       string `json:"type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Planes     int    `json:"planes"`
	Pitch      int    `json:"pitch"`
	Ownership  string `json:"ownership"`
	Linearized bool   `json:"linearized"`
	Max        uint16 `json:"max,omitempty"`
	Bytes      int    `json:"bytes"`
}

type GeometrySummary struct {
	RawWidth   uint32 `json:"raw_width"`
	RawHeight  uint32 `json:"raw_height"`
	Width      uint32 `json:"width"`
	Height     uint32 `json:"height"`
	LeftMargin uint32 `json:"left_margin"`
	TopMargin  uint32 `json:"top_margin"`
}

type ColorSummary struct {
	Filters uint32   `json:"filters"`
	Colors  int      `json:"colors"`
	Black   uint32   `json:"black"`
	CBlack  []uint32 `json:"cblack,omitempty"`
	Maximum uint32   `json:"maximum"`
}

type ExtractionResponse struct {
	ID          string           `json:"id"`
	Object      string           `json:"object"`
	CreatedAt   int64            `json:"created_at"`
	Code        string           `json:"code"`
	Verdict     VerdictResponse  `json:"verdict"`
	Stage       string           `json:"stage,omitempty"`
	Strategy    string           `json:"strategy,omitempty"`
	Group       string           `json:"group,omitempty"`
	Layout      *LayoutSummary   `json:"layout,omitempty"`
	Geometry    *GeometrySummary `json:"geometry,omitempty"`
	Color       *ColorSummary    `json:"color,omitempty"`
	Skipped     int              `json:"skipped_opcodes,omitempty"`
	Diagnostics []string         `json:"diagnostics"`
	Error       *ResponseError   `json:"error,omitempty"`
}

type DeleteExtractionResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}
