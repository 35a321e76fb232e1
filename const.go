package exr

const (
	initialHeaderRead    = 1 << 16
	defaultMaxHeaderSize = 1 << 30
	defaultPreviewSize   = 100
)
