package vision

import (
	"runtime"

	ort "github.com/yalue/onnxruntime_go"
)

// InitONNX loads the ONNX Runtime shared library. libPath may be empty to
// use the platform default name. Callers must pair it with DestroyONNX.
func InitONNX(libPath string) error {
	if libPath == "" {
		libPath = defaultONNXLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	return ort.InitializeEnvironment()
}

func DestroyONNX() {
	_ = ort.DestroyEnvironment()
}

func defaultONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
