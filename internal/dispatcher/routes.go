package dispatcher

import (
	"snapconvert/internal/converter"
	"snapconvert/internal/formats"
)

// Route names one conversion family pair. Routes double as metric labels.
type Route string

// Known routes. Together they cover every legal pair exactly once.
const (
	RouteDocumentToPDF Route = "document-to-pdf"
	RouteImageToPDF    Route = "image-to-pdf"
	RoutePDFToImage    Route = "pdf-to-image"
	RouteImageToImage  Route = "image-to-image"
	RouteVideoToVideo  Route = "video-to-video"
)

// Routes lists every route in a stable order.
var Routes = []Route{
	RouteDocumentToPDF,
	RouteImageToPDF,
	RoutePDFToImage,
	RouteImageToImage,
	RouteVideoToVideo,
}

type familyPair struct {
	in, out formats.Family
}

var routeTable = map[familyPair]Route{
	{formats.FamilyDocument, formats.FamilyPDF}: RouteDocumentToPDF,
	{formats.FamilyImage, formats.FamilyPDF}:    RouteImageToPDF,
	{formats.FamilyPDF, formats.FamilyImage}:    RoutePDFToImage,
	{formats.FamilyImage, formats.FamilyImage}:  RouteImageToImage,
	{formats.FamilyVideo, formats.FamilyVideo}:  RouteVideoToVideo,
}

// RouteFor selects the route for a format pair by the families involved.
func RouteFor(in, out formats.Format) (Route, bool) {
	r, ok := routeTable[familyPair{
		in:  formats.ResolveFamily(string(in)),
		out: formats.ResolveFamily(string(out)),
	}]
	return r, ok
}

// AdaptersFor maps each route to its adapter in set.
func AdaptersFor(set *converter.Set) map[Route]converter.Adapter {
	return map[Route]converter.Adapter{
		RouteDocumentToPDF: set.Document,
		RouteImageToPDF:    set.Composer,
		RoutePDFToImage:    set.Raster,
		RouteImageToImage:  set.Image,
		RouteVideoToVideo:  set.Video,
	}
}
