package s3

import "fmt"

var byteUnits = []string{"KB", "MB", "GB", "TB", "PB", "EB"}

// FormatBytes 將位元組數轉成易讀的格式，例如 2048 -> "2.00 KB"
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d bytes", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < len(byteUnits)-1; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %s", float64(bytes)/float64(div), byteUnits[exp])
}
