package port

// LocatorResolver turns a local media locator (plain path, file:// or
// content:// URI) into a directly readable filesystem path.
type LocatorResolver interface {
	Resolve(locator string) (string, error)
}
