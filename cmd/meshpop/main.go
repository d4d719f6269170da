/*
Copyright © 2024 the mesh1km-pop authors.
This file is part of mesh1km-pop.

mesh1km-pop is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mesh1km-pop is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mesh1km-pop.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command meshpop converts gridded population counts into map features.
package main

import (
	"fmt"
	"os"

	"github.com/Kanahiro/mesh1km-pop/meshpoputil"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	if err := meshpoputil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
