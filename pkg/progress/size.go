package progress

import "fmt"

var decimalAbbrs = []string{"B", "kB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

func HumanSize(size float64) string {
	return HumanSizeWithPrecision(size, 3)
}

func HumanSizeWithPrecision(size float64, precision int) string {
	i := 0
	for size >= 1000.0 && i < len(decimalAbbrs)-1 {
		size = size / 1000.0
		i++
	}
	return fmt.Sprintf("%.*g%s", precision, size, decimalAbbrs[i])
}
