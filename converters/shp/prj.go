package shp

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/darianmavgo/geoio/converters/common"
)

const wgs84WKT = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],` +
	`PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

var authority = regexp.MustCompile(`AUTHORITY\s*\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]\s*\]\s*$`)

// ReadSRID guesses the EPSG code of a .prj file. It understands a trailing
// EPSG authority and the plain WGS 84 geographic system; anything else is 0.
func ReadSRID(path string) int {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	wkt := strings.TrimSpace(string(raw))
	if m := authority.FindStringSubmatch(wkt); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	upper := strings.ToUpper(wkt)
	if strings.HasPrefix(upper, "GEOGCS[") && strings.Contains(upper, "WGS_1984") {
		return 4326
	}
	return 0
}

// WritePRJ writes a .prj for srid. Only WGS 84 (4326) is known; other
// codes write nothing.
func WritePRJ(path string, srid int) error {
	if srid != 4326 {
		return nil
	}
	if err := os.WriteFile(path, []byte(wgs84WKT), 0o644); err != nil {
		return common.IOError("shp.prj", path, err)
	}
	return nil
}
