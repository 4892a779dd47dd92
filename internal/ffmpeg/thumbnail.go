package ffmpeg

import "fmt"

// ThumbnailArgs extracts a single frame at atSec, scaled to 640 wide, as JPEG.
func ThumbnailArgs(inputPath string, atSec float64, outputPath string) []string {
	return []string{
		"-ss", fmt.Sprintf("%.2f", atSec),
		"-i", inputPath,
		"-frames:v", "1",
		"-vf", "scale=640:-2",
		"-q:v", "3",
		outputPath,
	}
}
