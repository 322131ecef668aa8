package build

// Version is set at link time with -ldflags "-X github.com/integrail/gamma-client/internal/build.Version=..."
var Version = "dev"
